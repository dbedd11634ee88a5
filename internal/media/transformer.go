package media

import (
	"bytes"
	"image/gif"
	"strings"

	"github.com/disintegration/imaging"
)

// Result is an encoded derivative. Ext may differ from the requested
// extension when the source format has no encoder (webp thumbnails come
// back as png).
type Result struct {
	Data   []byte
	Ext    string
	Width  int
	Height int
}

// Transformer produces normalized and scaled variants of raster images.
// Inputs and outputs are byte buffers; it never touches storage.
type Transformer struct{}

func NewTransformer() *Transformer {
	return &Transformer{}
}

// NormalizeOrientation rewrites JPEGs whose EXIF orientation differs from
// top-left so that the stored pixels match what the camera saw. Other
// formats carry no orientation tag and pass through untouched.
func (t *Transformer) NormalizeOrientation(data []byte, ext string) ([]byte, error) {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
	default:
		return data, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Thumbnail scales the image to fit within width x height, preserving
// aspect ratio. The encoded result never exceeds either bound. Animated
// GIFs pass through unscaled when allowAnimation is set: re-encoding
// through a single-frame pipeline would freeze them.
func (t *Transformer) Thumbnail(data []byte, ext string, width, height int, allowAnimation bool) (*Result, error) {
	if allowAnimation && strings.ToLower(ext) == ".gif" && t.IsAnimatedGIF(data) {
		cfg, err := gif.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return &Result{Data: data, Ext: ".gif", Width: cfg.Width, Height: cfg.Height}, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}

	resized := imaging.Fit(img, width, height, imaging.Lanczos)
	bounds := resized.Bounds()

	outExt := strings.ToLower(ext)
	format, err := imaging.FormatFromExtension(outExt)
	if err != nil {
		outExt = ".png"
		format = imaging.PNG
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, format); err != nil {
		return nil, err
	}

	return &Result{
		Data:   buf.Bytes(),
		Ext:    outExt,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

// IsAnimatedGIF reports whether data is a GIF with more than one frame.
func (t *Transformer) IsAnimatedGIF(data []byte) bool {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return false
	}
	return len(g.Image) > 1
}
