package webimg

import "image"

// Orientation mirrors the EXIF orientation tag of a decoded image.
// OrientationUp is the identity orientation and the default.
type Orientation uint8

// EXIF orientation values 1 through 8.
const (
	OrientationUp Orientation = iota + 1
	OrientationUpMirrored
	OrientationDown
	OrientationDownMirrored
	OrientationLeftMirrored
	OrientationRight
	OrientationRightMirrored
	OrientationLeft
)

// Bitmap is a decoded image together with the metadata the cache and the
// download path need: natural pixel dimensions, the display scale factor the
// image was decoded for, and the frame count for animated payloads.
type Bitmap struct {
	// Image holds the decoded raster. For animated payloads this is the
	// first frame.
	Image image.Image

	// Width and Height are the natural pixel dimensions.
	Width  int
	Height int

	// Scale is the display scale factor. Zero is treated as 1.
	Scale float64

	// Frames is the number of frames in the payload; 1 for still images.
	Frames int

	// Orientation is the EXIF orientation recorded during decode.
	Orientation Orientation
}

// Cost approximates the decoded memory footprint of the bitmap:
// width * height * scale². It is the bookkeeping unit the memory cache
// evicts against.
func (b *Bitmap) Cost() int {
	if b == nil {
		return 0
	}
	scale := b.Scale
	if scale == 0 {
		scale = 1
	}
	return int(float64(b.Width*b.Height) * scale * scale)
}

// Animated reports whether the bitmap carries more than one frame.
func (b *Bitmap) Animated() bool {
	return b != nil && b.Frames > 1
}

// HasAlpha reports whether the raster carries an alpha channel with at least
// one non-opaque pixel.
func (b *Bitmap) HasAlpha() bool {
	if b == nil || b.Image == nil {
		return false
	}
	if op, ok := b.Image.(interface{ Opaque() bool }); ok {
		return !op.Opaque()
	}
	return false
}
