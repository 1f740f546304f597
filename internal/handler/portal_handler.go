package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/capital-declarations-api/internal/dto"
	"github.com/noah-isme/capital-declarations-api/internal/models"
	appErrors "github.com/noah-isme/capital-declarations-api/pkg/errors"
	"github.com/noah-isme/capital-declarations-api/pkg/response"
)

// multipart framing allowance on top of the file limit
const multipartOverhead = 1 << 20

type portalService interface {
	GetView(ctx context.Context, token string) (*models.PortalView, error)
	UploadDocument(ctx context.Context, declarationID, token string, upload dto.PortalUpload) (*models.Document, error)
	MarkDocumentsComplete(ctx context.Context, declarationID, token string) error
}

// PortalHandler serves the unauthenticated client portal.
type PortalHandler struct {
	service  portalService
	maxBytes int64
}

// NewPortalHandler builds the handler. maxBytes caps a single uploaded file.
func NewPortalHandler(service portalService, maxBytes int64) *PortalHandler {
	if maxBytes <= 0 {
		maxBytes = 20 << 20
	}
	return &PortalHandler{service: service, maxBytes: maxBytes}
}

// View godoc
// @Summary Open the client portal
// @Tags Portal
// @Produce json
// @Param token path string true "Portal token"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /portal/{token} [get]
func (h *PortalHandler) View(c *gin.Context) {
	view, err := h.service.GetView(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Upload godoc
// @Summary Upload a document through the client portal
// @Tags Portal
// @Accept multipart/form-data
// @Produce json
// @Param token path string true "Portal token"
// @Param id path string true "Declaration ID"
// @Param fileType formData string true "Document type"
// @Param file formData file true "Document"
// @Success 201 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /portal/{token}/declarations/{id}/documents [post]
func (h *PortalHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.Error(c, appErrors.Clone(appErrors.ErrTooLarge, "file exceeds the upload limit"))
			return
		}
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	if fileHeader.Size > h.maxBytes {
		response.Error(c, appErrors.Clone(appErrors.ErrTooLarge, "file exceeds the upload limit"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, h.maxBytes+1))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to buffer file"))
		return
	}

	upload := dto.PortalUpload{
		FileType: c.PostForm("fileType"),
		FileName: fileHeader.Filename,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Data:     data,
	}
	doc, err := h.service.UploadDocument(c.Request.Context(), c.Param("id"), c.Param("token"), upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, doc)
}

// Complete godoc
// @Summary Tell the firm all documents were uploaded
// @Tags Portal
// @Param token path string true "Portal token"
// @Param id path string true "Declaration ID"
// @Success 204
// @Failure 410 {object} response.Envelope
// @Router /portal/{token}/declarations/{id}/complete [post]
func (h *PortalHandler) Complete(c *gin.Context) {
	if err := h.service.MarkDocumentsComplete(c.Request.Context(), c.Param("id"), c.Param("token")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
