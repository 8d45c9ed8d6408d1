// Package imaging validates and decodes document photographs before they are sent to the model.
package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"go.uber.org/zap"
	_ "golang.org/x/image/webp" // register WEBP decoder

	"github.com/kailas-cloud/docextract/internal/domain"
	"github.com/kailas-cloud/docextract/internal/logger"
)

var mimeTypes = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
}

// Bounds are the accepted pixel dimensions and file size.
type Bounds struct {
	MinWidth     int
	MinHeight    int
	MaxWidth     int
	MaxHeight    int
	MaxFileBytes int64
}

// Validator checks image paths and decodes them into a domain.ValidatedImage.
type Validator struct {
	bounds  Bounds
	formats []string
}

// NewValidator creates a validator accepting the given formats (jpeg, png, webp).
func NewValidator(bounds Bounds, formats []string) *Validator {
	if len(formats) == 0 {
		formats = []string{"jpeg", "png", "webp"}
	}
	return &Validator{bounds: bounds, formats: formats}
}

// ValidateAndLoad checks that path names a readable regular file, decodes it and
// enforces the configured bounds. Failures are permanent for a given input.
func (v *Validator) ValidateAndLoad(ctx context.Context, path string) (domain.ValidatedImage, error) {
	if path == "" {
		return domain.ValidatedImage{}, &domain.ValidationError{Msg: "image path is empty"}
	}

	data, err := v.read(path)
	if err != nil {
		return domain.ValidatedImage{}, err
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return domain.ValidatedImage{}, &domain.ImageLoadError{
			Path: path, Msg: fmt.Sprintf("cannot decode image %s", path), Err: err,
		}
	}
	if !slices.Contains(v.formats, format) {
		return domain.ValidatedImage{}, &domain.ImageLoadError{
			Path: path, Msg: fmt.Sprintf("unsupported image format %q for %s", format, path),
		}
	}
	if err := v.checkDimensions(path, cfg.Width, cfg.Height); err != nil {
		return domain.ValidatedImage{}, err
	}

	raster, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return domain.ValidatedImage{}, &domain.ImageLoadError{
			Path: path, Msg: fmt.Sprintf("cannot decode image %s", path), Err: err,
		}
	}

	b := raster.Bounds()
	logger.FromContext(ctx).Debug("Image validated",
		zap.String("path", path),
		zap.String("format", format),
		zap.Int("width", b.Dx()),
		zap.Int("height", b.Dy()),
		zap.Int("bytes", len(data)),
	)

	return domain.ValidatedImage{
		Path:     path,
		Format:   format,
		MIMEType: mimeTypes[format],
		Width:    b.Dx(),
		Height:   b.Dy(),
		Raster:   raster,
		Data:     data,
	}, nil
}

func (v *Validator) read(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &domain.ValidationError{Path: path, Msg: fmt.Sprintf("image not found: %s", path), Err: err}
		}
		return nil, &domain.ValidationError{Path: path, Msg: fmt.Sprintf("cannot stat %s", path), Err: err}
	}
	if !info.Mode().IsRegular() {
		return nil, &domain.ValidationError{Path: path, Msg: fmt.Sprintf("not a regular file: %s", path)}
	}
	if v.bounds.MaxFileBytes > 0 && info.Size() > v.bounds.MaxFileBytes {
		return nil, &domain.ValidationError{
			Path: path,
			Msg:  fmt.Sprintf("image %s is %d bytes, limit is %d", path, info.Size(), v.bounds.MaxFileBytes),
		}
	}

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, &domain.ValidationError{Path: path, Msg: fmt.Sprintf("image is not readable: %s", path), Err: err}
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, &domain.ValidationError{Path: path, Msg: fmt.Sprintf("read %s", path), Err: err}
	}
	return data, nil
}

func (v *Validator) checkDimensions(path string, w, h int) error {
	b := v.bounds
	if w < b.MinWidth || h < b.MinHeight {
		return &domain.ValidationError{
			Path: path,
			Msg:  fmt.Sprintf("image %dx%d is below the minimum %dx%d", w, h, b.MinWidth, b.MinHeight),
		}
	}
	if (b.MaxWidth > 0 && w > b.MaxWidth) || (b.MaxHeight > 0 && h > b.MaxHeight) {
		return &domain.ValidationError{
			Path: path,
			Msg:  fmt.Sprintf("image %dx%d exceeds the maximum %dx%d", w, h, b.MaxWidth, b.MaxHeight),
		}
	}
	return nil
}
