package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/pkg/errcode"
	"github.com/xxxsen/docqa/internal/pkg/response"
)

const multipartOverhead = 1 << 20

type documentIngester interface {
	Upload(ctx context.Context, sessionID, filename string, data []byte) (*model.Document, error)
	Reingest(ctx context.Context, sessionID, docID string) (*model.Document, error)
}

type documentManager interface {
	List(ctx context.Context, sessionID string) ([]*model.Document, error)
	Get(ctx context.Context, sessionID, docID string) (*model.Document, error)
	Delete(ctx context.Context, sessionID, docID string) error
}

type DocumentHandler struct {
	ingest      documentIngester
	documents   documentManager
	maxFileSize int64
}

func NewDocumentHandler(ingest documentIngester, documents documentManager, maxFileSize int64) *DocumentHandler {
	return &DocumentHandler{ingest: ingest, documents: documents, maxFileSize: maxFileSize}
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	if h.maxFileSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxFileSize+multipartOverhead)
	}
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "file is required")
		return
	}
	if h.maxFileSize > 0 && file.Size > h.maxFileSize {
		response.Error(c, errcode.ErrFileTooLarge, "file exceeds "+formatUploadLimit(h.maxFileSize))
		return
	}
	opened, err := file.Open()
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to open file")
		return
	}
	defer opened.Close()
	data, err := io.ReadAll(opened)
	if err != nil {
		response.Error(c, errcode.ErrUploadFailed, "failed to read file")
		return
	}
	doc, err := h.ingest.Upload(c.Request.Context(), getSessionID(c), file.Filename, data)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.documents.List(c.Request.Context(), getSessionID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, docs)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.documents.Get(c.Request.Context(), getSessionID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.documents.Delete(c.Request.Context(), getSessionID(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}

func (h *DocumentHandler) Reingest(c *gin.Context) {
	doc, err := h.ingest.Reingest(c.Request.Context(), getSessionID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

// formatUploadLimit renders a byte limit for error messages, rounding down to
// whole units.
func formatUploadLimit(bytes int64) string {
	const (
		kb = 1 << 10
		mb = 1 << 20
	)
	switch {
	case bytes >= mb:
		return fmt.Sprintf("%dMB", bytes/mb)
	case bytes >= kb:
		return fmt.Sprintf("%dKB", bytes/kb)
	case bytes > 0:
		return fmt.Sprintf("%dB", bytes)
	default:
		return "0B"
	}
}
