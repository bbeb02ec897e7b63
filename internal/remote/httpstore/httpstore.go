// Package httpstore talks to a syncmirror server over its JSON API.
package httpstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/openmined/syncmirror/internal/remote"
	"github.com/openmined/syncmirror/internal/version"
)

const defaultTimeout = 5 * time.Minute

// TokenSource hands out the current access token for each request.
type TokenSource interface {
	AccessToken() string
}

type Store struct {
	client *resty.Client
}

// New returns a store for the server at baseURL. tokens may be nil for an
// unauthenticated server.
func New(baseURL string, tokens TokenSource) *Store {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultTimeout).
		SetHeader(HeaderUserAgent, version.AppName+"/"+version.Version).
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)

	if tokens != nil {
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			if token := tokens.AccessToken(); token != "" {
				req.SetAuthToken(token)
			}
			return nil
		})
	}
	return &Store{client: client}
}

func (s *Store) ListChildren(ctx context.Context, parentID string) ([]*remote.Node, error) {
	var resp ListNodesResponse
	res, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("parent", parentID).
		SetResult(&resp).
		SetError(&APIError{}).
		Get(PathNodes)
	if err := handleAPIError(res, err, "list nodes"); err != nil {
		return nil, err
	}
	return resp.Nodes, nil
}

func (s *Store) CreateFolder(ctx context.Context, name, parentID string) (*remote.Node, error) {
	var node remote.Node
	res, err := s.client.R().
		SetContext(ctx).
		SetBody(&CreateFolderRequest{Name: name, Parent: parentID}).
		SetResult(&node).
		SetError(&APIError{}).
		Post(PathFolders)
	if err := handleAPIError(res, err, "create folder"); err != nil {
		return nil, err
	}
	return &node, nil
}

func (s *Store) CreateFile(ctx context.Context, params *remote.CreateFileParams) (*remote.Node, error) {
	props, err := json.Marshal(params.Properties)
	if err != nil {
		return nil, fmt.Errorf("encode properties: %w", err)
	}

	var node remote.Node
	res, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("name", params.Name).
		SetQueryParam("parent", params.ParentID).
		SetFileReader(FormFieldFile, params.Name, contentOrEmpty(params.Content)).
		SetFormData(map[string]string{FormFieldProperties: string(props)}).
		SetResult(&node).
		SetError(&APIError{}).
		Post(PathFiles)
	if err := handleAPIError(res, err, "create file"); err != nil {
		return nil, err
	}
	return &node, nil
}

func (s *Store) UpdateFile(ctx context.Context, id string, content io.Reader, size int64) (*remote.Node, error) {
	var node remote.Node
	res, err := s.client.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetFileReader(FormFieldFile, id, contentOrEmpty(content)).
		SetResult(&node).
		SetError(&APIError{}).
		Put(PathFile)
	if err := handleAPIError(res, err, "update file"); err != nil {
		return nil, err
	}
	return &node, nil
}

func (s *Store) GetFileMetadata(ctx context.Context, id string) (*remote.Node, error) {
	var node remote.Node
	res, err := s.client.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&node).
		SetError(&APIError{}).
		Get(PathFile)
	if err := handleAPIError(res, err, "get file"); err != nil {
		return nil, err
	}
	return &node, nil
}

// DownloadFile streams the content; the caller closes the reader.
func (s *Store) DownloadFile(ctx context.Context, id string) (io.ReadCloser, error) {
	res, err := s.client.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetDoNotParseResponse(true).
		Get(PathFileContent)
	if err != nil {
		return nil, fmt.Errorf("http request error: download file: %w", err)
	}

	body := res.RawBody()
	if res.IsError() {
		defer body.Close()
		data, _ := io.ReadAll(io.LimitReader(body, 64<<10))
		apiErr := &APIError{}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Code == "" {
			apiErr = nil
		}
		return nil, statusError(res.StatusCode(), apiErr, string(data), "download file")
	}
	return body, nil
}

func contentOrEmpty(r io.Reader) io.Reader {
	if r == nil {
		return http.NoBody
	}
	return r
}

// handleAPIError turns transport failures and error responses into errors
// the sync engine can classify.
func handleAPIError(res *resty.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("http request error: %s: %w", operation, requestErr)
	}
	if !res.IsError() {
		return nil
	}
	apiErr, _ := res.Error().(*APIError)
	if apiErr != nil && apiErr.Code == "" {
		apiErr = nil
	}
	return statusError(res.StatusCode(), apiErr, res.String(), operation)
}

func statusError(status int, apiErr *APIError, body, operation string) error {
	var cause error = apiErr
	if apiErr == nil {
		cause = fmt.Errorf("status %d: %s", status, body)
	}

	switch {
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%s: %w: %w", operation, remote.ErrUnauthorized, cause)
	case status == http.StatusNotFound:
		return fmt.Errorf("%s: %w: %w", operation, remote.ErrNotFound, cause)
	case status == http.StatusConflict:
		return fmt.Errorf("%s: %w: %w", operation, remote.ErrAlreadyExists, cause)
	}
	return fmt.Errorf("%s: %w", operation, cause)
}

// IsAPIError reports whether err carries an API error with code.
func IsAPIError(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

var _ remote.Store = (*Store)(nil)
