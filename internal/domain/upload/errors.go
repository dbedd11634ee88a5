package upload

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUploadNotFound          = errors.New("upload not found")
	ErrOptimizedImageNotFound  = errors.New("optimized image not found")
	ErrNotOwner                = errors.New("you do not own this upload")
	ErrFileTooLarge            = errors.New("file exceeds maximum allowed size")
	ErrDuplicateContentHash    = errors.New("content hash already exists")
	ErrDuplicateOptimizedImage = errors.New("optimized image already exists for dimensions")

	// inspection failures, one per distinct cause
	ErrDimensionsNotFound = errors.New("could not read declared image dimensions")
	ErrImageUnreadable    = errors.New("image content could not be read")
	ErrUnknownImageType   = errors.New("unrecognized image type")
	ErrSizeNotFound       = errors.New("image size could not be determined")

	// ErrBlobStoreFailed means the metadata row exists but the blob write
	// did not complete; the row stays behind as the failed state a retry
	// will supersede.
	ErrBlobStoreFailed = errors.New("blob store did not return a locator")

	ErrNotAnImage           = errors.New("upload is not an image")
	ErrUploadNotStored      = errors.New("upload has no stored blob")
	ErrInvalidThumbnailSize = errors.New("thumbnail dimensions must be positive")
)

// ValidationErrors accumulates everything wrong with an upload so the
// caller sees one coherent set: Fields keys problems by field name, Base
// holds record-level failures such as inspection errors.
type ValidationErrors struct {
	Fields map[string][]string
	Base   []error
}

func (e *ValidationErrors) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], message)
}

func (e *ValidationErrors) AddBase(err error) {
	e.Base = append(e.Base, err)
}

func (e *ValidationErrors) Any() bool {
	return len(e.Fields) > 0 || len(e.Base) > 0
}

// HasBase reports whether a base-level failure matches target.
func (e *ValidationErrors) HasBase(target error) bool {
	for _, err := range e.Base {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// BaseMessages renders record-level failures for presentation.
func (e *ValidationErrors) BaseMessages() []string {
	out := make([]string, 0, len(e.Base))
	for _, err := range e.Base {
		out = append(out, err.Error())
	}
	return out
}

func (e *ValidationErrors) Error() string {
	var parts []string
	for field, messages := range e.Fields {
		for _, m := range messages {
			parts = append(parts, fmt.Sprintf("%s %s", field, m))
		}
	}
	parts = append(parts, e.BaseMessages()...)
	return "upload invalid: " + strings.Join(parts, "; ")
}
