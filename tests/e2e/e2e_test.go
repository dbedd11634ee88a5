package e2e

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"mediastore/internal/database"
	"mediastore/internal/domain/upload"
	"mediastore/internal/lock"
	"mediastore/internal/media"
	"mediastore/internal/middleware"
	"mediastore/internal/storage"
)

const baseURL = "http://localhost:8080/uploads"

type E2ETestSuite struct {
	router     *gin.Engine
	db         *gorm.DB
	uploadsDir string
}

type TestResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *ErrorDetail    `json:"error,omitempty"`
}

type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func setupTestSuite(t *testing.T) *E2ETestSuite {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Connect(":memory:")
	require.NoError(t, err, "Failed to connect to test database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&upload.Upload{}, &upload.OptimizedImage{}))

	uploadsDir := t.TempDir()
	store := storage.NewDiskStore(uploadsDir, baseURL)
	locker := lock.NewLocalLocker(5 * time.Second)
	zlog := zap.NewNop()

	service := upload.NewService(
		upload.NewRepository(db),
		upload.NewOptimizedImageRepository(db),
		store,
		locker,
		media.NewTransformer(),
		upload.Config{
			MaxImageDimension: 4096,
			MaxOriginLength:   1000,
			MaxUploadBytes:    10 << 20,
			ThumbnailsEnabled: true,
			StoreTimeout:      5 * time.Second,
		},
		zlog,
	)

	r := gin.New()
	r.Use(middleware.RequestLogger(zlog))
	r.Use(middleware.Recovery(zlog))
	r.Use(middleware.CORS())
	r.Static("/uploads", uploadsDir)
	upload.RegisterRoutes(r.Group("/api/v1"), upload.NewHandler(service))

	return &E2ETestSuite{router: r, db: db, uploadsDir: uploadsDir}
}

func (s *E2ETestSuite) request(t *testing.T, method, path string, body *bytes.Buffer, contentType, ownerID string) (*httptest.ResponseRecorder, TestResponse) {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if ownerID != "" {
		req.Header.Set("X-Owner-ID", ownerID)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var resp TestResponse
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), "body: %s", rec.Body.String())
	}
	return rec, resp
}

func (s *E2ETestSuite) upload(t *testing.T, ownerID, filename string, data []byte) map[string]any {
	t.Helper()
	body, contentType := multipartFile(t, filename, data)
	rec, resp := s.request(t, http.MethodPost, "/api/v1/uploads", body, contentType, ownerID)
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())
	require.True(t, resp.Success)

	var created map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	return created
}

func multipartFile(t *testing.T, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func pngImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 150, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// blobPath maps a public locator back to its path under the uploads dir.
func (s *E2ETestSuite) blobPath(t *testing.T, locator string) string {
	t.Helper()
	require.Contains(t, locator, baseURL+"/")
	key := locator[len(baseURL)+1:]
	return filepath.Join(s.uploadsDir, filepath.FromSlash(key))
}

func TestUploadLifecycle(t *testing.T) {
	s := setupTestSuite(t)

	// create
	created := s.upload(t, "1", "photo.png", pngImage(t, 300, 150))
	id := created["id"].(string)
	locator := created["url"].(string)
	assert.Equal(t, "stored", created["state"])
	assert.EqualValues(t, 300, created["width"])
	assert.EqualValues(t, 150, created["height"])
	assert.FileExists(t, s.blobPath(t, locator))

	// fetch by id
	rec, resp := s.request(t, http.MethodGet, "/api/v1/uploads/"+id, nil, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	// list for owner
	rec, resp = s.request(t, http.MethodGet, "/api/v1/uploads", nil, "", "1")
	require.Equal(t, http.StatusOK, rec.Code)
	var items []map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &items))
	assert.Len(t, items, 1)

	// derive a thumbnail, twice: second call must reuse the first
	body := bytes.NewBufferString(`{"width":100,"height":100}`)
	rec, resp = s.request(t, http.MethodPost, "/api/v1/uploads/"+id+"/thumbnail", body, "application/json", "")
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	var thumb map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &thumb))
	assert.FileExists(t, s.blobPath(t, thumb["url"].(string)))

	body = bytes.NewBufferString(`{"width":100,"height":100}`)
	rec, resp = s.request(t, http.MethodPost, "/api/v1/uploads/"+id+"/thumbnail", body, "application/json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var again map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &again))
	assert.Equal(t, thumb["id"], again["id"], "repeated derivation must return the cached variant")

	// resolve the public URL back to the upload
	rec, resp = s.request(t, http.MethodGet, "/api/v1/resolve?url="+url.QueryEscape(locator), nil, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resolved map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &resolved))
	assert.Equal(t, id, resolved["id"])

	// destroy: metadata, blob and thumbnail all go together
	rec, _ = s.request(t, http.MethodDelete, "/api/v1/uploads/"+id, nil, "", "1")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.request(t, http.MethodGet, "/api/v1/uploads/"+id, nil, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NoFileExists(t, s.blobPath(t, locator))
	assert.NoFileExists(t, s.blobPath(t, thumb["url"].(string)))
}

func TestUploadDedup(t *testing.T) {
	s := setupTestSuite(t)
	data := pngImage(t, 40, 40)

	first := s.upload(t, "1", "one.png", data)
	second := s.upload(t, "2", "two.png", data)

	assert.Equal(t, first["id"], second["id"], "identical content must deduplicate")
	assert.Equal(t, first["url"], second["url"])

	var n int64
	require.NoError(t, s.db.Model(&upload.Upload{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestUploadValidationErrors(t *testing.T) {
	s := setupTestSuite(t)

	// vector content with no usable size
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="0" height="0"></svg>`)
	body, contentType := multipartFile(t, "logo.svg", svg)
	rec, resp := s.request(t, http.MethodPost, "/api/v1/uploads", body, contentType, "1")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_FAILED", resp.Error.Code)

	// nothing was persisted, neither metadata nor files
	var n int64
	require.NoError(t, s.db.Model(&upload.Upload{}).Count(&n).Error)
	assert.EqualValues(t, 0, n)
	entries, err := os.ReadDir(s.uploadsDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// no file part at all
	rec, resp = s.request(t, http.MethodPost, "/api/v1/uploads", bytes.NewBufferString(""), "multipart/form-data", "1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NO_FILE", resp.Error.Code)
}

func TestStaticBlobServing(t *testing.T) {
	s := setupTestSuite(t)

	data := pngImage(t, 20, 20)
	created := s.upload(t, "1", "photo.png", data)

	locator := created["url"].(string)
	path := locator[len("http://localhost:8080"):]

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, data, rec.Body.Bytes())
}

func TestCORSPreflight(t *testing.T) {
	s := setupTestSuite(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/uploads", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
