package webimg

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
)

// Format identifies an on-disk image encoding.
type Format int

// Supported encode formats.
const (
	FormatJPEG Format = iota
	FormatPNG
	FormatGIF
)

// String returns the conventional short name of the format.
func (f Format) String() string {
	switch f {
	case FormatPNG:
		return "png"
	case FormatGIF:
		return "gif"
	default:
		return "jpeg"
	}
}

// pngSignature is the 8-byte magic prefix of every PNG stream.
var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// gifSignature is the shared prefix of the GIF87a and GIF89a headers.
var gifSignature = []byte("GIF8")

// HasPNGSignature reports whether data starts with the 8-byte PNG signature.
func HasPNGSignature(data []byte) bool {
	return bytes.HasPrefix(data, pngSignature)
}

// Meta carries the metadata progressive decoding records from the first
// decodable prefix of a byte stream.
type Meta struct {
	Width       int
	Height      int
	Orientation Orientation
}

// Codec is the boundary to the raw byte-stream decode/encode routines. It is
// stateless; implementations must be safe for concurrent use. The package
// ships StdCodec; tests and callers with exotic formats can substitute their
// own.
type Codec interface {
	// Decode decodes a complete or partial encoded payload into a bitmap.
	// scale is the display scale factor to record; zero means 1.
	Decode(data []byte, scale float64) (*Bitmap, error)

	// DecodeMeta probes data for decodable metadata. It reports the natural
	// dimensions and orientation as soon as the accumulated prefix carries
	// them, and false until then.
	DecodeMeta(data []byte) (Meta, bool)

	// Encode serializes a bitmap in the given format.
	Encode(bm *Bitmap, format Format) ([]byte, error)

	// Decompress eagerly materializes the raster so later draws pay no lazy
	// decode cost. Animated bitmaps are returned unchanged.
	Decompress(bm *Bitmap) *Bitmap
}

// StdCodec implements Codec with the standard library image packages.
// PNG, JPEG, and GIF (including animated GIF) are supported.
type StdCodec struct{}

// Decode implements Codec.
func (StdCodec) Decode(data []byte, scale float64) (*Bitmap, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Reason: "zero-size payload"}
	}
	if scale == 0 {
		scale = 1
	}

	if bytes.HasPrefix(data, gifSignature) {
		g, err := gif.DecodeAll(bytes.NewReader(data))
		if err == nil && len(g.Image) > 0 {
			first := g.Image[0]
			return &Bitmap{
				Image:       first,
				Width:       g.Config.Width,
				Height:      g.Config.Height,
				Scale:       scale,
				Frames:      len(g.Image),
				Orientation: OrientationUp,
			}, nil
		}
		// Fall through: a truncated GIF prefix may still decode one frame.
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Reason: "undecodable payload", Err: err}
	}
	bounds := img.Bounds()
	return &Bitmap{
		Image:       img,
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		Scale:       scale,
		Frames:      1,
		Orientation: OrientationUp,
	}, nil
}

// DecodeMeta implements Codec. The standard decoders read dimensions from the
// stream header, so a short prefix is usually enough.
func (StdCodec) DecodeMeta(data []byte) (Meta, bool) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Meta{}, false
	}
	return Meta{Width: cfg.Width, Height: cfg.Height, Orientation: OrientationUp}, true
}

// Encode implements Codec. JPEG output uses maximum quality.
func (StdCodec) Encode(bm *Bitmap, format Format) ([]byte, error) {
	if bm == nil || bm.Image == nil {
		return nil, fmt.Errorf("encode %s: %w", format, ErrUnsupportedFormat)
	}
	var buf bytes.Buffer
	var err error
	switch format {
	case FormatPNG:
		err = png.Encode(&buf, bm.Image)
	case FormatJPEG:
		err = jpeg.Encode(&buf, bm.Image, &jpeg.Options{Quality: 100})
	case FormatGIF:
		err = gif.Encode(&buf, bm.Image, nil)
	default:
		return nil, fmt.Errorf("encode format %d: %w", format, ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

// Decompress implements Codec by drawing the raster into a fresh RGBA image.
// Animated bitmaps bypass eager decompression.
func (StdCodec) Decompress(bm *Bitmap) *Bitmap {
	if bm == nil || bm.Image == nil || bm.Animated() {
		return bm
	}
	bounds := bm.Image.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), bm.Image, bounds.Min, draw.Src)
	out := *bm
	out.Image = rgba
	return &out
}

// StoreFormat decides the encoding for a re-encoded disk store. The heuristic
// is fixed: bytes carrying the PNG signature stay PNG; with no bytes at all,
// a bitmap with an alpha channel becomes PNG; everything else becomes
// maximum-quality JPEG. Inputs that are already compressed but carry no
// recognized signature deliberately fall through to JPEG — downstream
// consumers depend on the exact emitted format.
func StoreFormat(data []byte, bm *Bitmap) Format {
	if HasPNGSignature(data) {
		return FormatPNG
	}
	if len(data) == 0 && bm.HasAlpha() {
		return FormatPNG
	}
	return FormatJPEG
}
