// Package transform implements the geometric normalization steps applied
// to every image before it enters the output tree: square-padding,
// center-cropping and resizing. All functions are pure; they take an
// image and return a new one without touching shared state.
package transform

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Options selects which normalization steps run. The order is fixed:
// pad, then crop (ratio applied to the already-padded dimensions), then
// resize to the target square dimension.
type Options struct {
	Pad             bool
	Crop            bool
	CropRatio       float64
	Resize          bool
	TargetDimension int
}

// Apply runs the enabled transforms in their fixed order
func Apply(img image.Image, opts Options) image.Image {
	out := img
	if opts.Pad {
		out = SquarePad(out)
	}
	if opts.Crop {
		out = CenterCropRatio(out, opts.CropRatio)
	}
	if opts.Resize {
		out = Resize(out, opts.TargetDimension, opts.TargetDimension)
	}
	return out
}

// SquarePad pads the short axis of an image with black so that width and
// height match. Both sides of the short axis receive ceil(diff/2) pixels,
// so when the difference is odd the result ends up one pixel larger than
// square. Downstream consumers rely on that exact behavior; do not
// replace the ceil with balanced rounding.
func SquarePad(img image.Image) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if w == h {
		return img
	}

	black := color.NRGBA{0, 0, 0, 255}

	if w > h {
		pad := (w - h + 1) / 2
		dst := imaging.New(w, h+2*pad, black)
		return imaging.PasteCenter(dst, img)
	}

	pad := (h - w + 1) / 2
	dst := imaging.New(w+2*pad, h, black)
	return imaging.PasteCenter(dst, img)
}

// CenterCrop extracts a centered region of at most targetW x targetH
// pixels. Targets larger than the source are clamped, never expanded;
// when both targets cover the whole image the source is returned as-is.
// Center and half-extents use integer truncation, so an odd target loses
// its spare pixel rather than rounding.
func CenterCrop(img image.Image, targetW, targetH int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if targetW >= w && targetH >= h {
		return img
	}
	if targetW > w {
		targetW = w
	}
	if targetH > h {
		targetH = h
	}

	cx, cy := w/2, h/2
	rect := image.Rect(
		bounds.Min.X+cx-targetW/2,
		bounds.Min.Y+cy-targetH/2,
		bounds.Min.X+cx+targetW/2,
		bounds.Min.Y+cy+targetH/2,
	)

	return imaging.Crop(img, rect)
}

// CenterCropRatio center-crops to a fraction of the current dimensions.
// Target pixel counts are truncated, not rounded. A ratio of 1.0 is a
// no-op.
func CenterCropRatio(img image.Image, ratio float64) image.Image {
	bounds := img.Bounds()
	targetW := int(float64(bounds.Dx()) * ratio)
	targetH := int(float64(bounds.Dy()) * ratio)
	return CenterCrop(img, targetW, targetH)
}

// Resize rescales an image to exact pixel dimensions. Lanczos resampling
// is used in both directions: the datasets this tool handles contain
// fine retinal-layer structure that cheaper filters smear out.
func Resize(img image.Image, width, height int) image.Image {
	return imaging.Resize(img, width, height, imaging.Lanczos)
}

// ResizeFactor rescales an image by a multiplicative factor, truncating
// the resulting dimensions to whole pixels
func ResizeFactor(img image.Image, factor float64) image.Image {
	bounds := img.Bounds()
	width := int(float64(bounds.Dx()) * factor)
	height := int(float64(bounds.Dy()) * factor)
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return Resize(img, width, height)
}
