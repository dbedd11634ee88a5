package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mediastore/internal/lock"
	"mediastore/internal/media"
	"mediastore/internal/pkg/fingerprint"
	"mediastore/internal/storage"
)

const defaultMaxOriginLength = 1000

// Config carries the bounds and feature toggles threaded into the
// service at construction.
type Config struct {
	MaxImageDimension       int
	MaxOriginLength         int
	MaxUploadBytes          int64
	ThumbnailsEnabled       bool
	AllowAnimatedThumbnails bool
	StoreTimeout            time.Duration
	AssetHosts              []string
	CDNBaseURL              string
}

// CreateOptions are the optional parts of a creation request.
type CreateOptions struct {
	Origin      string
	ContentType string
}

// Service owns the content-addressed upload lifecycle: create with
// dedup, thumbnail derivation, destroy, and locator resolution.
type Service struct {
	repo        Repository
	optimized   OptimizedImageRepository
	store       storage.Store
	locker      lock.Locker
	transformer *media.Transformer
	cfg         Config
	log         *zap.Logger
}

func NewService(
	repo Repository,
	optimized OptimizedImageRepository,
	store storage.Store,
	locker lock.Locker,
	transformer *media.Transformer,
	cfg Config,
	log *zap.Logger,
) *Service {
	if cfg.MaxOriginLength <= 0 {
		cfg.MaxOriginLength = defaultMaxOriginLength
	}
	return &Service{
		repo:        repo,
		optimized:   optimized,
		store:       store,
		locker:      locker,
		transformer: transformer,
		cfg:         cfg,
		log:         log,
	}
}

// Create accepts a byte stream and either returns the upload that owns
// its content or a *ValidationErrors describing why it was rejected.
//
// Everything after hashing runs under a per-hash lock: identical content
// racing in from concurrent callers serializes there, and the
// repository's unique index on content_hash backstops anything that
// slips past. Metadata is persisted before the blob goes out, so a crash
// in between leaves a row in a recognized failed state that the next
// matching request purges and supersedes.
func (s *Service) Create(ctx context.Context, ownerID int64, r io.Reader, filename string, sizeBytes int64, opts CreateOptions) (*Upload, error) {
	if s.cfg.MaxUploadBytes > 0 && sizeBytes > s.cfg.MaxUploadBytes {
		return nil, ErrFileTooLarge
	}

	data, err := readLimited(r, s.cfg.MaxUploadBytes)
	if err != nil {
		return nil, err
	}

	hash := fingerprint.Sum(data)

	var result *Upload
	err = s.locker.WithLock(ctx, "upload:"+hash, func(ctx context.Context) error {
		existing, err := s.repo.GetByContentHash(ctx, hash)
		if err != nil && !errors.Is(err, ErrUploadNotFound) {
			return err
		}
		if existing != nil {
			if existing.IsStored() {
				result = existing
				return nil
			}
			// prior attempt never finished: purge it and start over
			if err := s.destroy(ctx, existing); err != nil {
				return fmt.Errorf("supersede failed upload: %w", err)
			}
		}

		u, content, verrs := s.build(ownerID, data, filename, sizeBytes, hash, opts)
		if verrs.Any() {
			return verrs
		}

		if err := s.repo.Create(ctx, u); err != nil {
			return err
		}

		locator, err := s.storeBlob(ctx, s.objectKey(u), u.ContentType, content)
		if err != nil {
			u.State = StateFailed
			if uerr := s.repo.Update(ctx, u); uerr != nil {
				s.log.Error("failed to mark upload as failed",
					zap.String("upload_id", u.ID),
					zap.Error(uerr))
			}
			s.log.Error("blob store failed",
				zap.String("upload_id", u.ID),
				zap.String("content_hash", hash),
				zap.Error(err))
			return fmt.Errorf("%w: %v", ErrBlobStoreFailed, err)
		}

		u.Locator = locator
		u.State = StateStored
		if err := s.repo.Update(ctx, u); err != nil {
			return err
		}

		s.log.Info("upload stored",
			zap.String("upload_id", u.ID),
			zap.String("content_hash", hash),
			zap.Int64("size_bytes", u.SizeBytes))

		result = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// build assembles the candidate record and accumulates every validation
// problem instead of stopping at the first. The returned content may
// differ from the input: JPEGs come back orientation-normalized, and the
// normalized bytes are what get stored. The fingerprint stays computed
// over the submitted bytes, which is the dedup identity callers see.
func (s *Service) build(ownerID int64, data []byte, filename string, sizeBytes int64, hash string, opts CreateOptions) (*Upload, []byte, *ValidationErrors) {
	verrs := &ValidationErrors{}

	u := &Upload{
		ID:           uuid.New().String(),
		OwnerID:      ownerID,
		OriginalName: filename,
		SizeBytes:    sizeBytes,
		ContentHash:  hash,
		ContentType:  opts.ContentType,
		State:        StatePending,
		Origin:       truncate(opts.Origin, s.cfg.MaxOriginLength),
	}
	if u.ContentType == "" {
		u.ContentType = detectContentType(data)
	}

	if IsImageName(filename) {
		ext := strings.ToLower(filepath.Ext(filename))
		// normalize first: a rotated JPEG reports swapped dimensions
		// until its pixels match the EXIF orientation
		if normalized, err := s.transformer.NormalizeOrientation(data, ext); err == nil {
			data = normalized
		}

		dims, err := Inspect(filename, data)
		switch {
		case err != nil:
			verrs.AddBase(err)
		case dims != nil:
			w, h := fitDimensions(dims.Width, dims.Height, s.cfg.MaxImageDimension)
			u.Width, u.Height = &w, &h
		}
	}

	if strings.TrimSpace(u.OriginalName) == "" {
		verrs.Add("original_name", "is required")
	}
	if u.SizeBytes <= 0 {
		verrs.Add("size_bytes", "must be greater than zero")
	}

	return u, data, verrs
}

// EnsureThumbnail returns the cached variant for (upload, width, height),
// creating it on first request. The upload's canonical width/height
// follow the most recently produced thumbnail. allowAnimation overrides
// the configured default when non-nil. Returns (nil, nil) when thumbnail
// derivation is disabled.
func (s *Service) EnsureThumbnail(ctx context.Context, u *Upload, width, height int, allowAnimation *bool) (*OptimizedImage, error) {
	if !s.cfg.ThumbnailsEnabled {
		return nil, nil
	}
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidThumbnailSize
	}

	existing, err := s.optimized.GetByKey(ctx, u.ID, width, height)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrOptimizedImageNotFound) {
		return nil, err
	}

	if u.Width == nil || u.Height == nil {
		return nil, ErrNotAnImage
	}
	if !u.IsStored() {
		return nil, ErrUploadNotStored
	}

	allow := s.cfg.AllowAnimatedThumbnails
	if allowAnimation != nil {
		allow = *allowAnimation
	}

	data, err := s.store.Fetch(ctx, u.Locator)
	if err != nil {
		return nil, fmt.Errorf("fetch original blob: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(u.OriginalName))
	res, err := s.transformer.Thumbnail(data, ext, width, height, allow)
	if err != nil {
		return nil, fmt.Errorf("produce thumbnail: %w", err)
	}

	// the variant id goes into the object key: concurrent attempts for the
	// same (upload, width, height) write distinct blobs, so the race loser
	// below removes only its own orphan, never the winner's object
	id := uuid.New().String()

	locator, err := s.storeBlob(ctx, s.thumbnailKey(u, id, width, height, res.Ext), contentTypeFor(res.Ext), res.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBlobStoreFailed, err)
	}

	oi := &OptimizedImage{
		ID:       id,
		UploadID: u.ID,
		Width:    width,
		Height:   height,
		Locator:  locator,
	}
	if err := s.optimized.Create(ctx, oi); err != nil {
		if errors.Is(err, ErrDuplicateOptimizedImage) {
			// lost a race; the winner's row is the cache entry
			_ = s.store.Remove(ctx, locator)
			return s.optimized.GetByKey(ctx, u.ID, width, height)
		}
		return nil, err
	}

	u.Width, u.Height = &res.Width, &res.Height
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}

	s.log.Info("thumbnail created",
		zap.String("upload_id", u.ID),
		zap.Int("width", width),
		zap.Int("height", height))

	return oi, nil
}

// Destroy removes the upload, its cached variants and every blob as one
// unit. Blob removals run inside the metadata transaction: a removal
// failure rolls everything back and the upload stays intact for retry.
func (s *Service) Destroy(ctx context.Context, u *Upload) error {
	return s.destroy(ctx, u)
}

// DestroyByID is the caller-facing variant with an ownership check.
func (s *Service) DestroyByID(ctx context.Context, id string, ownerID int64) error {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if u.OwnerID != ownerID {
		return ErrNotOwner
	}
	return s.destroy(ctx, u)
}

func (s *Service) destroy(ctx context.Context, u *Upload) error {
	err := s.repo.WithTx(ctx, func(uploads Repository, optimized OptimizedImageRepository) error {
		variants, err := optimized.ListByUploadID(ctx, u.ID)
		if err != nil {
			return err
		}
		if err := optimized.DeleteByUploadID(ctx, u.ID); err != nil {
			return err
		}
		if err := uploads.Delete(ctx, u.ID); err != nil {
			return err
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, v := range variants {
			locator := v.Locator
			g.Go(func() error {
				return s.store.Remove(gctx, locator)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if u.Locator != "" {
			if err := s.store.Remove(ctx, u.Locator); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("upload destroyed", zap.String("upload_id", u.ID))
	return nil
}

// ResolveByLocator maps a public URL, possibly CDN-rewritten or served
// off an asset host, back to its upload. Blank input resolves to nothing
// without touching the store or the database.
func (s *Service) ResolveByLocator(ctx context.Context, rawURL string) (*Upload, error) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return nil, nil
	}

	locator := s.normalizeLocator(raw)

	ok, err := s.store.Has(ctx, locator)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	u, err := s.repo.GetByLocator(ctx, locator)
	if errors.Is(err, ErrUploadNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*Upload, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByOwner(ctx context.Context, ownerID int64) ([]*Upload, error) {
	return s.repo.ListByOwnerID(ctx, ownerID)
}

func (s *Service) normalizeLocator(raw string) string {
	base := s.store.BaseURL()
	if s.cfg.CDNBaseURL != "" && strings.HasPrefix(raw, s.cfg.CDNBaseURL) {
		return base + strings.TrimPrefix(raw, s.cfg.CDNBaseURL)
	}
	for _, host := range s.cfg.AssetHosts {
		host = strings.TrimRight(host, "/")
		if host != "" && strings.HasPrefix(raw, host) {
			return base + strings.TrimPrefix(raw, host)
		}
	}
	return raw
}

func (s *Service) storeBlob(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if s.cfg.StoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.StoreTimeout)
		defer cancel()
	}

	locator, err := s.store.Store(ctx, key, contentType, data)
	if err != nil {
		return "", err
	}
	if locator == "" {
		return "", errors.New("store returned empty locator")
	}
	return locator, nil
}

// objectKey follows the uploads/YYYY/MM/DD sharding convention.
func (s *Service) objectKey(u *Upload) string {
	now := time.Now()
	ext := strings.ToLower(filepath.Ext(u.OriginalName))
	if ext == "" {
		ext = extensionFor(u.ContentType)
	}
	return fmt.Sprintf("%d/%02d/%02d/%s_%s%s",
		now.Year(), now.Month(), now.Day(), u.ID, sanitizeName(u.OriginalName), ext)
}

func (s *Service) thumbnailKey(u *Upload, variantID string, width, height int, ext string) string {
	now := time.Now()
	return fmt.Sprintf("%d/%02d/%02d/%s_%s_%dx%d%s",
		now.Year(), now.Month(), now.Day(), u.ID, variantID, width, height, ext)
}

func readLimited(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read upload stream: %w", err)
		}
		return data, nil
	}

	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, fmt.Errorf("read upload stream: %w", err)
	}
	if int64(len(data)) > max {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

func detectContentType(data []byte) string {
	n := len(data)
	if n > 512 {
		n = 512
	}
	return strings.Split(http.DetectContentType(data[:n]), ";")[0]
}

func contentTypeFor(ext string) string {
	if ct := mime.TypeByExtension(ext); ct != "" {
		return strings.Split(ct, ";")[0]
	}
	return "application/octet-stream"
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	default:
		return ".bin"
	}
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func sanitizeName(name string) string {
	name = filepath.Base(name)
	name = strings.TrimSuffix(name, filepath.Ext(name)) // strip extension (added separately)
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return '_'
	}, name)
	if len(name) > 40 {
		name = name[:40]
	}
	if name == "" {
		return "file"
	}
	return name
}
