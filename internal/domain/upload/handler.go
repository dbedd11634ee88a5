package upload

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mediastore/internal/lock"
	"mediastore/internal/pkg/response"
	"mediastore/internal/pkg/validator"
)

// Handler exposes the upload store over HTTP. Callers are identified by
// the X-Owner-ID header, injected by the upstream gateway.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type ThumbnailRequest struct {
	Width    int   `json:"width" validate:"required,min=1,max=8192"`
	Height   int   `json:"height" validate:"required,min=1,max=8192"`
	Animated *bool `json:"animated"`
}

// Create handles POST /uploads. Identical content is deduplicated: the
// response carries the already-stored upload when the fingerprint is
// known.
func (h *Handler) Create(c *gin.Context) {
	ownerID := mustOwnerID(c)
	if ownerID == 0 {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, "NO_FILE", "no file provided")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, "UNREADABLE_FILE", "could not read uploaded file")
		return
	}
	defer file.Close()

	opts := CreateOptions{
		Origin:      c.PostForm("origin"),
		ContentType: fileHeader.Header.Get("Content-Type"),
	}

	u, err := h.service.Create(c.Request.Context(), ownerID, file, fileHeader.Filename, fileHeader.Size, opts)
	if err != nil {
		h.renderCreateError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, uploadJSON(u))
}

func (h *Handler) renderCreateError(c *gin.Context, err error) {
	var verrs *ValidationErrors
	switch {
	case errors.As(err, &verrs):
		response.ValidationFailed(c, verrs.Fields, verrs.BaseMessages())
	case errors.Is(err, ErrFileTooLarge):
		response.Error(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", err.Error())
	case errors.Is(err, ErrBlobStoreFailed):
		response.Error(c, http.StatusBadGateway, "STORE_FAILED", "metadata saved but blob storage failed; retrying will supersede")
	case errors.Is(err, ErrDuplicateContentHash):
		response.Error(c, http.StatusConflict, "DUPLICATE_CONTENT", "identical content was stored concurrently; retry to fetch it")
	case errors.Is(err, lock.ErrTimeout):
		response.Error(c, http.StatusServiceUnavailable, "LOCK_TIMEOUT", "timed out waiting on a concurrent upload of identical content")
	case errors.Is(err, lock.ErrUnavailable):
		response.Error(c, http.StatusServiceUnavailable, "LOCK_UNAVAILABLE", "lock backend unavailable")
	default:
		response.Error(c, http.StatusInternalServerError, "UPLOAD_FAILED", "upload failed")
	}
}

// Get handles GET /uploads/:id.
func (h *Handler) Get(c *gin.Context) {
	u, err := h.service.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "upload not found")
		return
	}
	response.Success(c, http.StatusOK, uploadJSON(u))
}

// List handles GET /uploads for the calling owner.
func (h *Handler) List(c *gin.Context) {
	ownerID := mustOwnerID(c)
	if ownerID == 0 {
		return
	}

	uploads, err := h.service.ListByOwner(c.Request.Context(), ownerID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "LIST_FAILED", "failed to list uploads")
		return
	}

	items := make([]gin.H, 0, len(uploads))
	for _, u := range uploads {
		items = append(items, uploadJSON(u))
	}
	response.Success(c, http.StatusOK, items)
}

// Delete handles DELETE /uploads/:id.
func (h *Handler) Delete(c *gin.Context) {
	ownerID := mustOwnerID(c)
	if ownerID == 0 {
		return
	}

	err := h.service.DestroyByID(c.Request.Context(), c.Param("id"), ownerID)
	if err != nil {
		switch {
		case errors.Is(err, ErrUploadNotFound):
			response.Error(c, http.StatusNotFound, "NOT_FOUND", "upload not found")
		case errors.Is(err, ErrNotOwner):
			response.Error(c, http.StatusForbidden, "NOT_OWNER", err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, "DELETE_FAILED", "delete failed")
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// Thumbnail handles POST /uploads/:id/thumbnail.
func (h *Handler) Thumbnail(c *gin.Context) {
	var req ThumbnailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ErrorWithDetails(c, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid thumbnail request", errs)
		return
	}

	u, err := h.service.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "upload not found")
		return
	}

	oi, err := h.service.EnsureThumbnail(c.Request.Context(), u, req.Width, req.Height, req.Animated)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotAnImage):
			response.Error(c, http.StatusUnprocessableEntity, "NOT_AN_IMAGE", err.Error())
		case errors.Is(err, ErrUploadNotStored):
			response.Error(c, http.StatusConflict, "UPLOAD_NOT_STORED", err.Error())
		case errors.Is(err, ErrInvalidThumbnailSize):
			response.Error(c, http.StatusBadRequest, "INVALID_DIMENSIONS", err.Error())
		case errors.Is(err, ErrBlobStoreFailed):
			response.Error(c, http.StatusBadGateway, "STORE_FAILED", "thumbnail storage failed")
		default:
			response.Error(c, http.StatusInternalServerError, "THUMBNAIL_FAILED", "failed to produce thumbnail")
		}
		return
	}
	if oi == nil {
		response.Error(c, http.StatusNotFound, "THUMBNAILS_DISABLED", "thumbnail derivation is disabled")
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"id":         oi.ID,
		"upload_id":  oi.UploadID,
		"url":        oi.Locator,
		"width":      oi.Width,
		"height":     oi.Height,
		"created_at": oi.CreatedAt,
	})
}

// Resolve handles GET /resolve?url=..., mapping a public URL back to its
// upload.
func (h *Handler) Resolve(c *gin.Context) {
	u, err := h.service.ResolveByLocator(c.Request.Context(), c.Query("url"))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "RESOLVE_FAILED", "failed to resolve locator")
		return
	}
	if u == nil {
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "no upload for locator")
		return
	}
	response.Success(c, http.StatusOK, uploadJSON(u))
}

func uploadJSON(u *Upload) gin.H {
	data := gin.H{
		"id":           u.ID,
		"url":          u.Locator,
		"name":         u.OriginalName,
		"content_type": u.ContentType,
		"content_hash": u.ContentHash,
		"size_bytes":   u.SizeBytes,
		"state":        u.State,
		"created_at":   u.CreatedAt,
	}
	if u.Width != nil && u.Height != nil {
		data["width"] = *u.Width
		data["height"] = *u.Height
	}
	if u.Origin != "" {
		data["origin"] = u.Origin
	}
	return data
}

func mustOwnerID(c *gin.Context) int64 {
	raw := c.GetHeader("X-Owner-ID")
	if raw == "" {
		response.Error(c, http.StatusUnauthorized, "MISSING_OWNER", "X-Owner-ID header is required")
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusUnauthorized, "INVALID_OWNER", "X-Owner-ID must be a positive integer")
		return 0
	}
	return id
}
