package httpstore

import (
	"fmt"

	"github.com/openmined/syncmirror/internal/remote"
)

const (
	HeaderUserAgent = "User-Agent"

	PathNodes       = "/api/v1/nodes"
	PathFolders     = "/api/v1/folders"
	PathFiles       = "/api/v1/files"
	PathFile        = "/api/v1/files/{id}"
	PathFileContent = "/api/v1/files/{id}/content"
	PathAuthRefresh = "/api/v1/auth/refresh"

	FormFieldFile       = "file"
	FormFieldProperties = "properties"
)

const (
	CodeInvalidRequest     = "E_INVALID_REQUEST"
	CodeNotFound           = "E_NOT_FOUND"
	CodeAlreadyExists      = "E_ALREADY_EXISTS"
	CodeInternalError      = "E_INTERNAL_ERROR"
	CodeInvalidCredentials = "E_AUTH_INVALID_CREDENTIALS"
	CodeTokenRefreshFailed = "E_AUTH_TOKEN_REFRESH_FAILED"
)

// APIError is the JSON body of every failed request.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s - %s", e.Code, e.Message)
}

type ListNodesResponse struct {
	Nodes []*remote.Node `json:"nodes"`
}

type CreateFolderRequest struct {
	Name   string `json:"name" binding:"required"`
	Parent string `json:"parent"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
