package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/capital-declarations-api/internal/dto"
	"github.com/noah-isme/capital-declarations-api/internal/models"
	appErrors "github.com/noah-isme/capital-declarations-api/pkg/errors"
)

type portalServiceMock struct {
	view        *models.PortalView
	viewErr     error
	uploaded    *dto.PortalUpload
	uploadErr   error
	completeErr error
	completed   bool
}

func (m *portalServiceMock) GetView(ctx context.Context, token string) (*models.PortalView, error) {
	if m.viewErr != nil {
		return nil, m.viewErr
	}
	return m.view, nil
}

func (m *portalServiceMock) UploadDocument(ctx context.Context, declarationID, token string, upload dto.PortalUpload) (*models.Document, error) {
	if m.uploadErr != nil {
		return nil, m.uploadErr
	}
	m.uploaded = &upload
	return &models.Document{ID: "doc-1", DeclarationID: declarationID, FileType: upload.FileType, FileName: upload.FileName}, nil
}

func (m *portalServiceMock) MarkDocumentsComplete(ctx context.Context, declarationID, token string) error {
	m.completed = m.completeErr == nil
	return m.completeErr
}

func multipartUpload(t *testing.T, fileType, name string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	require.NoError(t, writer.WriteField("fileType", fileType))
	part, err := writer.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return buf, writer.FormDataContentType()
}

func portalUploadContext(t *testing.T, data []byte) (*gin.Context, *httptest.ResponseRecorder) {
	body, contentType := multipartUpload(t, "bank_statement", "statement.pdf", data)
	c, w := newContext(http.MethodPost, "/portal/tok/declarations/decl-1/documents", body, nil)
	c.Request.Header.Set("Content-Type", contentType)
	c.Params = gin.Params{{Key: "token", Value: "tok"}, {Key: "id", Value: "decl-1"}}
	return c, w
}

func TestPortalHandlerView(t *testing.T) {
	svc := &portalServiceMock{view: &models.PortalView{
		IsFirstAccess: true,
		Declaration:   models.PortalDeclaration{ID: "decl-1", TaxYear: 2024, Status: models.DeclarationStatusInProgress},
		Firm:          models.FirmBranding{Name: "Acme Tax"},
	}}
	handler := NewPortalHandler(svc, 0)
	c, w := newContext(http.MethodGet, "/portal/tok", nil, nil)
	c.Params = gin.Params{{Key: "token", Value: "tok"}}

	handler.View(c)
	require.Equal(t, http.StatusOK, w.Code)

	var view models.PortalView
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &view))
	assert.True(t, view.IsFirstAccess)
	assert.Equal(t, "Acme Tax", view.Firm.Name)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestPortalHandlerViewInvalidLink(t *testing.T) {
	handler := NewPortalHandler(&portalServiceMock{viewErr: appErrors.Clone(appErrors.ErrInvalidLink, "")}, 0)
	c, w := newContext(http.MethodGet, "/portal/bogus", nil, nil)
	c.Params = gin.Params{{Key: "token", Value: "bogus"}}

	handler.View(c)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, appErrors.ErrInvalidLink.Code, decodeEnvelope(t, w).Error.Code)
}

func TestPortalHandlerUpload(t *testing.T) {
	svc := &portalServiceMock{}
	handler := NewPortalHandler(svc, 1024)
	c, w := portalUploadContext(t, []byte("%PDF-1.4 statement"))

	handler.Upload(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, svc.uploaded)
	assert.Equal(t, "bank_statement", svc.uploaded.FileType)
	assert.Equal(t, "statement.pdf", svc.uploaded.FileName)
	assert.Equal(t, []byte("%PDF-1.4 statement"), svc.uploaded.Data)
}

func TestPortalHandlerUploadTooLarge(t *testing.T) {
	svc := &portalServiceMock{}
	handler := NewPortalHandler(svc, 8)
	c, w := portalUploadContext(t, []byte("%PDF-1.4 far beyond eight bytes"))

	handler.Upload(c)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Nil(t, svc.uploaded)
}

func TestPortalHandlerUploadMissingFile(t *testing.T) {
	handler := NewPortalHandler(&portalServiceMock{}, 0)
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	require.NoError(t, writer.WriteField("fileType", "tabu"))
	require.NoError(t, writer.Close())
	c, w := newContext(http.MethodPost, "/portal/tok/declarations/decl-1/documents", buf, nil)
	c.Request.Header.Set("Content-Type", writer.FormDataContentType())

	handler.Upload(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPortalHandlerUploadExpired(t *testing.T) {
	svc := &portalServiceMock{uploadErr: appErrors.Clone(appErrors.ErrTokenExpired, "")}
	handler := NewPortalHandler(svc, 1024)
	c, w := portalUploadContext(t, []byte("%PDF-1.4"))

	handler.Upload(c)
	require.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, appErrors.ErrTokenExpired.Code, decodeEnvelope(t, w).Error.Code)
}

func TestPortalHandlerComplete(t *testing.T) {
	svc := &portalServiceMock{}
	handler := NewPortalHandler(svc, 0)
	c, w := newContext(http.MethodPost, "/portal/tok/declarations/decl-1/complete", nil, nil)
	c.Params = gin.Params{{Key: "token", Value: "tok"}, {Key: "id", Value: "decl-1"}}

	handler.Complete(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, svc.completed)
}
