package upload

import "time"

// State tracks how far an upload got through the persist-then-store
// sequence. A row that never reached StateStored is a failed attempt and
// must be superseded on the next matching request, never deduplicated.
type State string

const (
	StatePending State = "pending"
	StateStored  State = "stored"
	StateFailed  State = "failed"
)

// Upload is one durable record per distinct piece of content ever accepted.
// ContentHash is the dedup identity: at most one row exists per hash, the
// unique index being the backstop when the per-hash lock is bypassed.
type Upload struct {
	ID           string    `gorm:"column:id;primaryKey" json:"id"`
	OwnerID      int64     `gorm:"column:owner_id;index" json:"owner_id"`
	OriginalName string    `gorm:"column:original_name" json:"original_name"`
	SizeBytes    int64     `gorm:"column:size_bytes" json:"size_bytes"`
	ContentHash  string    `gorm:"column:content_hash;uniqueIndex" json:"content_hash"`
	ContentType  string    `gorm:"column:content_type" json:"content_type"`
	Locator      string    `gorm:"column:locator" json:"url"`
	State        State     `gorm:"column:state" json:"state"`
	Width        *int      `gorm:"column:width" json:"width,omitempty"`
	Height       *int      `gorm:"column:height" json:"height,omitempty"`
	Origin       string    `gorm:"column:origin" json:"origin,omitempty"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Upload) TableName() string { return "uploads" }

// IsStored reports whether the blob write completed. Only stored uploads
// are valid dedup targets.
func (u *Upload) IsStored() bool {
	return u.State == StateStored && u.Locator != ""
}

// OptimizedImage is a cached resized variant of an upload. Width and
// height are the requested envelope, unique per upload; rows are created
// lazily on first request and reused forever after.
type OptimizedImage struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	UploadID  string    `gorm:"column:upload_id;not null;uniqueIndex:idx_optimized_upload_dims" json:"upload_id"`
	Upload    *Upload   `gorm:"foreignKey:UploadID;constraint:OnDelete:CASCADE" json:"-"`
	Width     int       `gorm:"column:width;uniqueIndex:idx_optimized_upload_dims" json:"width"`
	Height    int       `gorm:"column:height;uniqueIndex:idx_optimized_upload_dims" json:"height"`
	Locator   string    `gorm:"column:locator" json:"url"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (OptimizedImage) TableName() string { return "optimized_images" }
