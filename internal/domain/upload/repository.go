package upload

import (
	"context"
	"errors"

	"gorm.io/gorm"
	sqlite "modernc.org/sqlite"
)

type Repository interface {
	Create(ctx context.Context, u *Upload) error
	Update(ctx context.Context, u *Upload) error
	GetByID(ctx context.Context, id string) (*Upload, error)
	GetByContentHash(ctx context.Context, hash string) (*Upload, error)
	GetByLocator(ctx context.Context, locator string) (*Upload, error)
	ListByOwnerID(ctx context.Context, ownerID int64) ([]*Upload, error)
	Delete(ctx context.Context, id string) error
	// WithTx runs fn against transaction-scoped repositories. fn returning
	// an error rolls the whole unit back.
	WithTx(ctx context.Context, fn func(uploads Repository, optimized OptimizedImageRepository) error) error
}

type OptimizedImageRepository interface {
	Create(ctx context.Context, oi *OptimizedImage) error
	GetByKey(ctx context.Context, uploadID string, width, height int) (*OptimizedImage, error)
	ListByUploadID(ctx context.Context, uploadID string) ([]*OptimizedImage, error)
	DeleteByUploadID(ctx context.Context, uploadID string) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// isDuplicateKey recognizes unique-constraint violations on both
// backends. Postgres errors arrive translated to gorm.ErrDuplicatedKey;
// modernc sqlite errors pass through gorm untranslated and carry the
// driver's own result codes.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		// 2067 = SQLITE_CONSTRAINT_UNIQUE, 1555 = SQLITE_CONSTRAINT_PRIMARYKEY
		return serr.Code() == 2067 || serr.Code() == 1555
	}
	return false
}

func (r *repository) Create(ctx context.Context, u *Upload) error {
	err := r.db.WithContext(ctx).Create(u).Error
	if isDuplicateKey(err) {
		return ErrDuplicateContentHash
	}
	return err
}

func (r *repository) Update(ctx context.Context, u *Upload) error {
	return r.db.WithContext(ctx).Save(u).Error
}

func (r *repository) GetByID(ctx context.Context, id string) (*Upload, error) {
	return r.getBy(ctx, "id = ?", id)
}

func (r *repository) GetByContentHash(ctx context.Context, hash string) (*Upload, error) {
	return r.getBy(ctx, "content_hash = ?", hash)
}

func (r *repository) GetByLocator(ctx context.Context, locator string) (*Upload, error) {
	return r.getBy(ctx, "locator = ?", locator)
}

func (r *repository) getBy(ctx context.Context, query string, arg any) (*Upload, error) {
	var u Upload
	err := r.db.WithContext(ctx).Where(query, arg).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUploadNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *repository) ListByOwnerID(ctx context.Context, ownerID int64) ([]*Upload, error) {
	var uploads []*Upload
	err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at DESC").Find(&uploads).Error
	return uploads, err
}

func (r *repository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&Upload{}).Error
}

func (r *repository) WithTx(ctx context.Context, fn func(Repository, OptimizedImageRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&repository{db: tx}, &optimizedImageRepository{db: tx})
	})
}

type optimizedImageRepository struct {
	db *gorm.DB
}

func NewOptimizedImageRepository(db *gorm.DB) OptimizedImageRepository {
	return &optimizedImageRepository{db: db}
}

func (r *optimizedImageRepository) Create(ctx context.Context, oi *OptimizedImage) error {
	err := r.db.WithContext(ctx).Create(oi).Error
	if isDuplicateKey(err) {
		return ErrDuplicateOptimizedImage
	}
	return err
}

func (r *optimizedImageRepository) GetByKey(ctx context.Context, uploadID string, width, height int) (*OptimizedImage, error) {
	var oi OptimizedImage
	err := r.db.WithContext(ctx).
		Where("upload_id = ? AND width = ? AND height = ?", uploadID, width, height).
		First(&oi).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOptimizedImageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &oi, nil
}

func (r *optimizedImageRepository) ListByUploadID(ctx context.Context, uploadID string) ([]*OptimizedImage, error) {
	var images []*OptimizedImage
	err := r.db.WithContext(ctx).Where("upload_id = ?", uploadID).Find(&images).Error
	return images, err
}

func (r *optimizedImageRepository) DeleteByUploadID(ctx context.Context, uploadID string) error {
	return r.db.WithContext(ctx).Where("upload_id = ?", uploadID).Delete(&OptimizedImage{}).Error
}
