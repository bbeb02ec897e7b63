// Package nodes serves a remote.Store over the JSON API spoken by httpstore.
package nodes

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/openmined/syncmirror/internal/remote"
	"github.com/openmined/syncmirror/internal/remote/httpstore"
)

type NodesHandler struct {
	store remote.Store
}

func New(store remote.Store) *NodesHandler {
	return &NodesHandler{store: store}
}

func (h *NodesHandler) List(ctx *gin.Context) {
	parent := ctx.Query("parent")
	nodes, err := h.store.ListChildren(ctx.Request.Context(), parent)
	if err != nil {
		h.fail(ctx, fmt.Errorf("list %q: %w", parent, err))
		return
	}
	if nodes == nil {
		nodes = []*remote.Node{}
	}
	ctx.JSON(http.StatusOK, &httpstore.ListNodesResponse{Nodes: nodes})
}

func (h *NodesHandler) CreateFolder(ctx *gin.Context) {
	var req httpstore.CreateFolderRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}

	node, err := h.store.CreateFolder(ctx.Request.Context(), req.Name, req.Parent)
	if err != nil {
		h.fail(ctx, fmt.Errorf("create folder %q: %w", req.Name, err))
		return
	}
	ctx.JSON(http.StatusCreated, node)
}

func (h *NodesHandler) CreateFile(ctx *gin.Context) {
	name := ctx.Query("name")
	if err := remote.ValidateName(name); err != nil {
		badRequest(ctx, err)
		return
	}

	var props map[string]string
	if raw := ctx.PostForm(httpstore.FormFieldProperties); raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &props); err != nil {
			badRequest(ctx, fmt.Errorf("bad properties: %w", err))
			return
		}
	}

	file, size, err := formFile(ctx)
	if err != nil {
		badRequest(ctx, err)
		return
	}
	defer file.Close()

	node, err := h.store.CreateFile(ctx.Request.Context(), &remote.CreateFileParams{
		Name:       name,
		ParentID:   ctx.Query("parent"),
		Content:    file,
		Size:       size,
		Properties: props,
	})
	if err != nil {
		h.fail(ctx, fmt.Errorf("create file %q: %w", name, err))
		return
	}
	ctx.JSON(http.StatusCreated, node)
}

func (h *NodesHandler) UpdateFile(ctx *gin.Context) {
	id := ctx.Param("id")
	file, size, err := formFile(ctx)
	if err != nil {
		badRequest(ctx, err)
		return
	}
	defer file.Close()

	node, err := h.store.UpdateFile(ctx.Request.Context(), id, file, size)
	if err != nil {
		h.fail(ctx, fmt.Errorf("update file %q: %w", id, err))
		return
	}
	ctx.JSON(http.StatusOK, node)
}

func (h *NodesHandler) GetFile(ctx *gin.Context) {
	id := ctx.Param("id")
	node, err := h.store.GetFileMetadata(ctx.Request.Context(), id)
	if err != nil {
		h.fail(ctx, fmt.Errorf("get file %q: %w", id, err))
		return
	}
	ctx.JSON(http.StatusOK, node)
}

func (h *NodesHandler) Download(ctx *gin.Context) {
	id := ctx.Param("id")
	node, err := h.store.GetFileMetadata(ctx.Request.Context(), id)
	if err != nil {
		h.fail(ctx, fmt.Errorf("get file %q: %w", id, err))
		return
	}

	rc, err := h.store.DownloadFile(ctx.Request.Context(), id)
	if err != nil {
		h.fail(ctx, fmt.Errorf("download %q: %w", id, err))
		return
	}
	defer rc.Close()

	ctx.DataFromReader(http.StatusOK, node.Size, "application/octet-stream", rc, nil)
}

func formFile(ctx *gin.Context) (io.ReadCloser, int64, error) {
	header, err := ctx.FormFile(httpstore.FormFieldFile)
	if err != nil {
		return nil, 0, fmt.Errorf("missing %q part: %w", httpstore.FormFieldFile, err)
	}
	file, err := header.Open()
	if err != nil {
		return nil, 0, err
	}
	return file, header.Size, nil
}

func badRequest(ctx *gin.Context, err error) {
	ctx.Error(err)
	ctx.JSON(http.StatusBadRequest, &httpstore.APIError{
		Code:    httpstore.CodeInvalidRequest,
		Message: err.Error(),
	})
}

func (h *NodesHandler) fail(ctx *gin.Context, err error) {
	ctx.Error(err)
	switch {
	case errors.Is(err, remote.ErrNotFound):
		ctx.JSON(http.StatusNotFound, &httpstore.APIError{Code: httpstore.CodeNotFound, Message: err.Error()})
	case errors.Is(err, remote.ErrAlreadyExists):
		ctx.JSON(http.StatusConflict, &httpstore.APIError{Code: httpstore.CodeAlreadyExists, Message: err.Error()})
	default:
		slog.Error("store request failed", "error", err)
		ctx.JSON(http.StatusInternalServerError, &httpstore.APIError{Code: httpstore.CodeInternalError, Message: err.Error()})
	}
}
