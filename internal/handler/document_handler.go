package handler

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/capital-declarations-api/internal/dto"
	"github.com/noah-isme/capital-declarations-api/internal/models"
	"github.com/noah-isme/capital-declarations-api/pkg/response"
)

type documentService interface {
	List(ctx context.Context, firmID, declarationID string) ([]models.Document, error)
	Review(ctx context.Context, firmID, declarationID, documentID string, actor models.Actor, req dto.ReviewDocumentRequest) (*models.Document, error)
	DownloadLink(ctx context.Context, firmID, declarationID, documentID string) (*dto.DocumentDownload, error)
	Open(ctx context.Context, token string) (io.ReadCloser, string, error)
}

// DocumentHandler exposes staff document review endpoints.
type DocumentHandler struct {
	service documentService
}

// NewDocumentHandler builds the handler.
func NewDocumentHandler(service documentService) *DocumentHandler {
	return &DocumentHandler{service: service}
}

// List godoc
// @Summary List uploaded documents
// @Tags Documents
// @Produce json
// @Param id path string true "Declaration ID"
// @Success 200 {object} response.Envelope
// @Router /declarations/{id}/documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	firmID, _, ok := staffScope(c)
	if !ok {
		return
	}
	docs, err := h.service.List(c.Request.Context(), firmID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docs, nil)
}

// Review godoc
// @Summary Approve or reject a document
// @Tags Documents
// @Accept json
// @Produce json
// @Param id path string true "Declaration ID"
// @Param documentId path string true "Document ID"
// @Param payload body dto.ReviewDocumentRequest true "Review decision"
// @Success 200 {object} response.Envelope
// @Router /declarations/{id}/documents/{documentId}/status [patch]
func (h *DocumentHandler) Review(c *gin.Context) {
	firmID, actor, ok := staffScope(c)
	if !ok {
		return
	}
	var req dto.ReviewDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid review payload"))
		return
	}
	doc, err := h.service.Review(c.Request.Context(), firmID, c.Param("id"), c.Param("documentId"), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// DownloadLink godoc
// @Summary Create a signed download link
// @Tags Documents
// @Produce json
// @Param id path string true "Declaration ID"
// @Param documentId path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /declarations/{id}/documents/{documentId}/download-link [get]
func (h *DocumentHandler) DownloadLink(c *gin.Context) {
	firmID, _, ok := staffScope(c)
	if !ok {
		return
	}
	link, err := h.service.DownloadLink(c.Request.Context(), firmID, c.Param("id"), c.Param("documentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// Download godoc
// @Summary Download a document with a signed token
// @Tags Documents
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Router /documents/download [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	rc, key, err := h.service.Open(c.Request.Context(), c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(key)))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, -1, contentType, rc, nil)
}
