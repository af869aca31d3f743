package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/paperbase/paperbase/internal/model"
	"github.com/paperbase/paperbase/internal/pkg/errcode"
	"github.com/paperbase/paperbase/internal/pkg/response"
	"github.com/paperbase/paperbase/internal/service"
)

type DocumentHandler struct {
	documents *service.DocumentService
}

func NewDocumentHandler(documents *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

// Upload accepts a multipart PDF and returns the queued document. Ingestion
// continues in the background; poll Status for progress.
func (h *DocumentHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "file is required")
		return
	}
	opened, err := file.Open()
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to open file")
		return
	}
	defer opened.Close()

	doc, err := h.documents.Upload(c.Request.Context(), file.Filename, opened)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.documents.List(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	if docs == nil {
		docs = []model.Document{}
	}
	response.Success(c, docs)
}

func (h *DocumentHandler) Status(c *gin.Context) {
	doc, err := h.documents.Status(c.Request.Context(), c.Param("slug"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

// PDF streams the stored original for the in-browser viewer.
func (h *DocumentHandler) PDF(c *gin.Context) {
	r, err := h.documents.OpenPDF(c.Request.Context(), c.Param("slug"))
	if err != nil {
		handleError(c, err)
		return
	}
	defer r.Close()
	c.Header("Content-Type", "application/pdf")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, r)
}
