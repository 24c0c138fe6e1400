package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urevent360-byte/urevent360-plus/internal/domain"
	"github.com/urevent360-byte/urevent360-plus/internal/entitlement"
	"github.com/urevent360-byte/urevent360-plus/internal/service"
	"github.com/urevent360-byte/urevent360-plus/pkg/response"
)

func multipartRequest(t *testing.T, path string, fields map[string]string, fileName string, content []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		part, err := mw.CreateFormFile(formFileField, fileName)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(t *testing.T, router *gin.Engine, req *http.Request) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestGalleryHandler_UploadGuestFile(t *testing.T) {
	var gotToken string
	var gotBody []byte
	mock := &MockGalleryService{
		UploadGuestFileFunc: func(ctx context.Context, token string, blob *service.Blob) (*domain.FileRecord, error) {
			gotToken = token
			var err error
			gotBody, err = io.ReadAll(blob.Body)
			require.NoError(t, err)
			if token == "paused" {
				return nil, domain.ErrUploadsInactive
			}
			return &domain.FileRecord{ID: "f-1", EventID: "evt-1", FileName: blob.FileName, Size: blob.Size}, nil
		},
	}
	router := newTestRouter(domain.Guest())
	router.POST("/uploads/:token", NewGalleryHandler(mock).UploadGuestFile)

	w, resp := serve(t, router, multipartRequest(t, "/uploads/tok-1", nil, "party.jpg", []byte("jpeg bytes")))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "tok-1", gotToken)
	assert.Equal(t, []byte("jpeg bytes"), gotBody)
	assert.Equal(t, "party.jpg", resp.Data.(map[string]interface{})["fileName"])

	w, resp = serve(t, router, multipartRequest(t, "/uploads/paused", nil, "party.jpg", []byte("jpeg bytes")))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", resp.Error.Code)

	w, resp = serve(t, router, multipartRequest(t, "/uploads/tok-1", nil, "", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "BAD_REQUEST", resp.Error.Code)
}

func TestGalleryHandler_AttachFile(t *testing.T) {
	var gotKind domain.FileKind
	mock := &MockGalleryService{
		AttachFileFunc: func(ctx context.Context, actor domain.Actor, eventID string, kind domain.FileKind, blob *service.Blob) (*domain.FileRecord, error) {
			gotKind = kind
			if kind == domain.FileKindContract {
				return nil, service.ErrBlobTooLarge
			}
			return &domain.FileRecord{ID: "f-2", EventID: eventID, Kind: kind}, nil
		},
	}
	router := newTestRouter(testAdmin)
	router.POST("/events/:id/files", NewGalleryHandler(mock).AttachFile)

	w, _ := serve(t, router, multipartRequest(t, "/events/evt-1/files", map[string]string{"kind": "design"}, "design.pdf", []byte("%PDF-1.4")))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, domain.FileKindDesign, gotKind)

	w, resp := serve(t, router, multipartRequest(t, "/events/evt-1/files", map[string]string{"kind": "contract"}, "contract.pdf", []byte("%PDF-1.4")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "FILE_TOO_LARGE", resp.Error.Code)
}

func TestGalleryHandler_ListGallery(t *testing.T) {
	locked := true
	mock := &MockGalleryService{
		ListGalleryFunc: func(ctx context.Context, actor domain.Actor, eventID string) (*service.GalleryView, error) {
			if locked {
				return nil, domain.ErrGalleryLocked
			}
			return &service.GalleryView{
				EventID:      eventID,
				Entitlements: entitlement.Entitlements{GalleryVisible: true},
				Files:        []*domain.FileRecord{{ID: "f-1"}},
			}, nil
		},
	}
	router := newTestRouter(testHost)
	router.GET("/events/:id/gallery", NewGalleryHandler(mock).ListGallery)

	w, resp := doJSON(t, router, http.MethodGet, "/events/evt-1/gallery", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "GALLERY_LOCKED", resp.Error.Code)

	locked = false
	w, resp = doJSON(t, router, http.MethodGet, "/events/evt-1/gallery", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "evt-1", data["eventId"])
	assert.Len(t, data["files"], 1)
	assert.Equal(t, true, data["entitlements"].(map[string]interface{})["galleryVisible"])
}

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	healthy := func(ctx context.Context) error { return nil }
	down := func(ctx context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name           string
		checks         map[string]CheckFunc
		expectedStatus int
		expected       map[string]string
	}{
		{
			name:           "all healthy",
			checks:         map[string]CheckFunc{"store": healthy, "redis": nil},
			expectedStatus: http.StatusOK,
			expected:       map[string]string{"store": "healthy", "redis": "not configured"},
		},
		{
			name:           "store down",
			checks:         map[string]CheckFunc{"store": down, "kafka": healthy},
			expectedStatus: http.StatusServiceUnavailable,
			expected:       map[string]string{"store": "unhealthy: connection refused", "kafka": "healthy"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.checks)
			router := gin.New()
			router.GET("/health", h.Health)
			router.GET("/ready", h.Ready)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, http.StatusOK, w.Code)

			w = httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
			assert.Equal(t, tt.expectedStatus, w.Code)

			var resp ReadyResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.expected, resp.Components)
		})
	}
}
