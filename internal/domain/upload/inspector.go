package upload

import (
	"bytes"
	"encoding/xml"
	"errors"
	"image"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// imageExtensions decides whether inspection is attempted at all.
// Anything else is accepted as an opaque blob with no dimensions.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".svg":  true,
}

type Dimensions struct {
	Width  int
	Height int
}

func IsImageName(filename string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Inspect extracts pixel dimensions from image-like content. Non-image
// filenames return (nil, nil): no dimensions, no error. Failures come
// back as one of the inspection sentinels so callers can report the
// exact cause.
func Inspect(filename string, data []byte) (*Dimensions, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case ext == ".svg":
		return inspectVector(data)
	case imageExtensions[ext]:
		return inspectRaster(data)
	default:
		return nil, nil
	}
}

// inspectVector reads the declared width/height attributes off the root
// element. A zero or absent declaration is a hard failure: vector content
// with no usable size cannot be displayed or thumbnailed.
func inspectVector(data []byte) (*Dimensions, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, ErrDimensionsNotFound
		}
		root, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		var width, height int
		for _, attr := range root.Attr {
			switch strings.ToLower(attr.Name.Local) {
			case "width":
				width = vectorLength(attr.Value)
			case "height":
				height = vectorLength(attr.Value)
			}
		}
		if width <= 0 || height <= 0 {
			return nil, ErrDimensionsNotFound
		}
		return &Dimensions{Width: width, Height: height}, nil
	}
}

// vectorLength parses the leading integer of a length declaration, so
// "120px", "120.5" and "120" all read as 120. Anything without a leading
// digit reads as zero.
func vectorLength(value string) int {
	value = strings.TrimSpace(value)
	end := 0
	for end < len(value) && value[end] >= '0' && value[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.Atoi(value[:end])
	if err != nil {
		return 0
	}
	return n
}

// inspectRaster reads header-level size information without decoding
// pixel data.
func inspectRaster(data []byte) (*Dimensions, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, classifyDecodeError(err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, ErrSizeNotFound
	}
	return &Dimensions{Width: cfg.Width, Height: cfg.Height}, nil
}

func classifyDecodeError(err error) error {
	switch {
	case errors.Is(err, image.ErrFormat):
		return ErrUnknownImageType
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return ErrImageUnreadable
	default:
		return ErrSizeNotFound
	}
}
