// Package miniostore keeps the remote tree in a MinIO bucket using the same
// key layout as s3store.
package miniostore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/openmined/syncmirror/internal/remote"
	"github.com/openmined/syncmirror/internal/utils"
)

type Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Secure    bool
}

func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if c.Bucket == "" {
		return errors.New("minio bucket is required")
	}
	return nil
}

// objectAPI is the subset of the MinIO client the store uses.
type objectAPI interface {
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	GetObject(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (io.ReadCloser, error)
}

// client adapts *minio.Client to objectAPI.
type client struct {
	*minio.Client
}

func (c client) GetObject(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	return c.Client.GetObject(ctx, bucket, key, opts)
}

type Store struct {
	api    objectAPI
	bucket string
}

func New(api objectAPI, bucket string) *Store {
	return &Store{api: api, bucket: bucket}
}

func NewWithConfig(cfg *Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize minio client: %w", err)
	}
	slog.Debug("minio store", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket, "accessKey", utils.MaskSecret(cfg.AccessKey))
	return New(client{mc}, cfg.Bucket), nil
}

func (s *Store) ListChildren(ctx context.Context, parentID string) ([]*remote.Node, error) {
	if err := remote.ValidateParent(parentID); err != nil {
		return nil, err
	}

	var folders, files []*remote.Node
	for obj := range s.api.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: parentID}) {
		if obj.Err != nil {
			return nil, translateError(obj.Err, parentID)
		}
		if obj.Key == parentID {
			continue
		}
		if strings.HasSuffix(obj.Key, "/") {
			folders = append(folders, &remote.Node{
				ID:   obj.Key,
				Name: remote.ChildName(parentID, obj.Key),
				Kind: remote.KindFolder,
			})
			continue
		}
		files = append(files, &remote.Node{
			ID:           obj.Key,
			Name:         remote.ChildName(parentID, obj.Key),
			Kind:         remote.KindFile,
			ModifiedTime: obj.LastModified,
			Size:         obj.Size,
		})
	}
	return append(folders, files...), nil
}

func (s *Store) CreateFolder(ctx context.Context, name, parentID string) (*remote.Node, error) {
	if err := remote.ValidateName(name); err != nil {
		return nil, err
	}
	if err := remote.ValidateParent(parentID); err != nil {
		return nil, err
	}

	key := remote.FolderKey(parentID, name)
	if _, err := s.api.PutObject(ctx, s.bucket, key, bytes.NewReader(nil), 0, minio.PutObjectOptions{}); err != nil {
		return nil, translateError(err, key)
	}
	return &remote.Node{ID: key, Name: name, Kind: remote.KindFolder, ModifiedTime: time.Now()}, nil
}

func (s *Store) CreateFile(ctx context.Context, params *remote.CreateFileParams) (*remote.Node, error) {
	if err := remote.ValidateName(params.Name); err != nil {
		return nil, err
	}
	if err := remote.ValidateParent(params.ParentID); err != nil {
		return nil, err
	}

	key := remote.FileKey(params.ParentID, params.Name)
	if err := s.put(ctx, key, params.Content, params.Size, params.Properties); err != nil {
		return nil, err
	}
	return s.GetFileMetadata(ctx, key)
}

func (s *Store) UpdateFile(ctx context.Context, id string, content io.Reader, size int64) (*remote.Node, error) {
	current, err := s.GetFileMetadata(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.put(ctx, id, content, size, current.Properties); err != nil {
		return nil, err
	}
	return s.GetFileMetadata(ctx, id)
}

func (s *Store) GetFileMetadata(ctx context.Context, id string) (*remote.Node, error) {
	if id == "" || strings.HasSuffix(id, "/") {
		return nil, fmt.Errorf("%w: %q is not a file", remote.ErrNotFound, id)
	}
	info, err := s.api.StatObject(ctx, s.bucket, id, minio.StatObjectOptions{})
	if err != nil {
		return nil, translateError(err, id)
	}
	return &remote.Node{
		ID:           id,
		Name:         remote.BaseName(id),
		Kind:         remote.KindFile,
		ModifiedTime: info.LastModified,
		Size:         info.Size,
		Properties:   fromUserMetadata(info.UserMetadata),
	}, nil
}

// DownloadFile stats the object first; the MinIO client only reports a
// missing object on the first read otherwise.
func (s *Store) DownloadFile(ctx context.Context, id string) (io.ReadCloser, error) {
	if _, err := s.GetFileMetadata(ctx, id); err != nil {
		return nil, err
	}
	rc, err := s.api.GetObject(ctx, s.bucket, id, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateError(err, id)
	}
	return rc, nil
}

func (s *Store) put(ctx context.Context, key string, content io.Reader, size int64, props map[string]string) error {
	if content == nil {
		content = bytes.NewReader(nil)
	}
	if size < 0 {
		size = -1
	}
	_, err := s.api.PutObject(ctx, s.bucket, key, content, size, minio.PutObjectOptions{
		UserMetadata: props,
		ContentType:  utils.ContentTypeFor(key),
	})
	if err != nil {
		return translateError(err, key)
	}
	return nil
}

var propertyKeys = []string{
	remote.PropMachineID,
	remote.PropVersion,
	remote.PropIsConflict,
	remote.PropOriginalName,
}

// fromUserMetadata restores property names; MinIO hands them back in
// canonical header form.
func fromUserMetadata(md map[string]string) map[string]string {
	if len(md) == 0 {
		return nil
	}
	canonical := make(map[string]string, len(propertyKeys))
	for _, key := range propertyKeys {
		canonical[strings.ToLower(key)] = key
	}
	props := make(map[string]string, len(md))
	for k, v := range md {
		lower := strings.ToLower(k)
		if key, ok := canonical[lower]; ok {
			props[key] = v
		} else {
			props[lower] = v
		}
	}
	return props
}

func translateError(err error, key string) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" || resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", remote.ErrNotFound, key)
	case resp.Code == "AccessDenied" || resp.Code == "InvalidAccessKeyId" ||
		resp.Code == "SignatureDoesNotMatch" || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", remote.ErrUnauthorized, resp.Message)
	}
	return fmt.Errorf("minio %s: %w", key, err)
}

var _ remote.Store = (*Store)(nil)
