// Package processing handles image I/O for the preparation pipeline:
// decoding source scans, running the geometric transforms, and encoding
// the result into the output tree.
package processing

import (
	"fmt"
	"image"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/oct-prep/pkg/transform"
)

// EncodeOptions selects the output format for processed images. Quality
// applies to jpg and webp; the default pipeline writes jpg at quality
// 100 so the single re-encode step loses as little as possible.
type EncodeOptions struct {
	Format   string
	Quality  int
	Lossless bool
}

// Processor handles image loading, transformation and saving
type Processor struct{}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{}
}

// LoadImage loads an image from a file path with WebP support
func (p *Processor) LoadImage(path string) (image.Image, error) {
	// Try imaging.Open (registered decoders)
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}

	// Fallback: explicit WebP decode
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if img, err := webp.Decode(f); err == nil {
		return img, nil
	}
	if _, err := f.Seek(0, 0); err == nil {
		if img, _, err := image.Decode(f); err == nil {
			return img, nil
		}
	}

	return nil, fmt.Errorf("image: unknown format for %s", path)
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path string, opts EncodeOptions) error {
	switch strings.ToLower(opts.Format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return webp.Encode(f, img, &webp.Options{Lossless: opts.Lossless, Quality: float32(opts.Quality)})
	case "png":
		return imaging.Save(img, path)
	default: // jpg/jpeg
		return imaging.Save(img, path, imaging.JPEGQuality(opts.Quality))
	}
}

// ProcessFile loads one source image, applies the configured transforms
// and writes the result to dst. A failure here concerns only this one
// image; callers record it and move on to the next file.
func (p *Processor) ProcessFile(src, dst string, transformOpts transform.Options, encodeOpts EncodeOptions) error {
	img, err := p.LoadImage(src)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", src, err)
	}

	out := transform.Apply(img, transformOpts)

	if err := p.SaveImage(out, dst, encodeOpts); err != nil {
		return fmt.Errorf("failed to save %s: %w", dst, err)
	}

	return nil
}
