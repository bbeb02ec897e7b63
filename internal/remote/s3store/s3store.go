// Package s3store keeps the remote tree in an S3 bucket. Folders are key
// prefixes materialized by an empty marker object, files are plain objects
// and node properties travel as user metadata.
package s3store

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

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/openmined/syncmirror/internal/remote"
	"github.com/openmined/syncmirror/internal/utils"
)

type Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

func (c *Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("s3 bucket is required")
	}
	if c.Region == "" {
		return errors.New("s3 region is required")
	}
	return nil
}

// s3API is the subset of *s3.Client the store uses.
type s3API interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type Store struct {
	client s3API
	bucket string
}

func New(client s3API, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

// NewWithConfig builds an S3 client from static credentials. A custom
// endpoint switches to path style addressing for S3 compatible servers.
func NewWithConfig(ctx context.Context, cfg *Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          50,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
		Timeout: 60 * time.Second,
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithHTTPClient(httpClient),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	slog.Debug("s3 store", "bucket", cfg.Bucket, "region", cfg.Region, "endpoint", cfg.Endpoint, "accessKey", utils.MaskSecret(cfg.AccessKey))
	return New(client, cfg.Bucket), nil
}

func (s *Store) ListChildren(ctx context.Context, parentID string) ([]*remote.Node, error) {
	if err := remote.ValidateParent(parentID); err != nil {
		return nil, err
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(parentID),
		Delimiter: aws.String("/"),
	})

	var folders, files []*remote.Node
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, translateError(err, parentID)
		}
		for _, p := range page.CommonPrefixes {
			prefix := aws.ToString(p.Prefix)
			folders = append(folders, &remote.Node{
				ID:   prefix,
				Name: remote.ChildName(parentID, prefix),
				Kind: remote.KindFolder,
			})
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == parentID || strings.HasSuffix(key, "/") {
				continue
			}
			files = append(files, &remote.Node{
				ID:           key,
				Name:         remote.ChildName(parentID, key),
				Kind:         remote.KindFile,
				ModifiedTime: aws.ToTime(obj.LastModified),
				Size:         aws.ToInt64(obj.Size),
			})
		}
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
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
	})
	if err != nil {
		return nil, translateError(err, key)
	}
	return &remote.Node{ID: key, Name: name, Kind: remote.KindFolder, ModifiedTime: time.Now()}, nil
}

// CreateFile writes a new object. An object already stored under the same
// key is replaced; S3 keys are unique within a folder.
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

	resp, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return nil, translateError(err, id)
	}

	return &remote.Node{
		ID:           id,
		Name:         remote.BaseName(id),
		Kind:         remote.KindFile,
		ModifiedTime: aws.ToTime(resp.LastModified),
		Size:         aws.ToInt64(resp.ContentLength),
		Properties:   fromMetadata(resp.Metadata),
	}, nil
}

func (s *Store) DownloadFile(ctx context.Context, id string) (io.ReadCloser, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return nil, translateError(err, id)
	}
	return resp.Body, nil
}

func (s *Store) put(ctx context.Context, key string, content io.Reader, size int64, props map[string]string) error {
	if content == nil {
		content = bytes.NewReader(nil)
	}
	input := &s3.PutObjectInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		Body:        content,
		Metadata:    props,
		ContentType: aws.String(utils.ContentTypeFor(key)),
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return translateError(err, key)
	}
	return nil
}

// S3 returns user metadata keys lower-cased.
var propertyKeys = []string{
	remote.PropMachineID,
	remote.PropVersion,
	remote.PropIsConflict,
	remote.PropOriginalName,
}

func fromMetadata(md map[string]string) map[string]string {
	if len(md) == 0 {
		return nil
	}
	props := make(map[string]string, len(md))
	for k, v := range md {
		props[strings.ToLower(k)] = v
	}
	for _, key := range propertyKeys {
		lower := strings.ToLower(key)
		if v, ok := props[lower]; ok && lower != key {
			delete(props, lower)
			props[key] = v
		}
	}
	return props
}

func translateError(err error, key string) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return fmt.Errorf("%w: %s: %s", remote.ErrNotFound, key, apiErr.ErrorMessage())
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "InvalidToken":
			return fmt.Errorf("%w: %s", remote.ErrUnauthorized, apiErr.ErrorMessage())
		}
	}
	return fmt.Errorf("s3 %s: %w", key, err)
}

var _ remote.Store = (*Store)(nil)
