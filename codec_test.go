package webimg

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeOpaqueBitmap builds a fully opaque RGBA bitmap.
func makeOpaqueBitmap(w, h int) *Bitmap {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 40), G: uint8(y * 40), B: 128, A: 255})
		}
	}
	return &Bitmap{Image: img, Width: w, Height: h, Scale: 1, Frames: 1}
}

// makeAlphaBitmap builds a bitmap with a transparent pixel.
func makeAlphaBitmap(w, h int) *Bitmap {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 10, B: 10, A: 255})
		}
	}
	img.Set(0, 0, color.NRGBA{})
	return &Bitmap{Image: img, Width: w, Height: h, Scale: 1, Frames: 1}
}

func encodePNG(t *testing.T, bm *Bitmap) []byte {
	t.Helper()
	data, err := StdCodec{}.Encode(bm, FormatPNG)
	require.NoError(t, err)
	return data
}

func TestStdCodec_PNGRoundTrip(t *testing.T) {
	codec := StdCodec{}
	data := encodePNG(t, makeOpaqueBitmap(6, 4))
	require.True(t, HasPNGSignature(data))

	bm, err := codec.Decode(data, 2)
	require.NoError(t, err)
	assert.Equal(t, 6, bm.Width)
	assert.Equal(t, 4, bm.Height)
	assert.Equal(t, 2.0, bm.Scale)
	assert.Equal(t, 1, bm.Frames)
	assert.False(t, bm.Animated())
}

func TestStdCodec_JPEGRoundTrip(t *testing.T) {
	codec := StdCodec{}
	data, err := codec.Encode(makeOpaqueBitmap(8, 8), FormatJPEG)
	require.NoError(t, err)
	require.False(t, HasPNGSignature(data))

	bm, err := codec.Decode(data, 0)
	require.NoError(t, err)
	assert.Equal(t, 8, bm.Width)
	assert.Equal(t, 8, bm.Height)
	assert.Equal(t, 1.0, bm.Scale) // zero scale normalizes to 1
}

func TestStdCodec_AnimatedGIF(t *testing.T) {
	frame := func(c color.Color) *image.Paletted {
		p := image.NewPaletted(image.Rect(0, 0, 3, 3), color.Palette{color.Black, c})
		p.SetColorIndex(1, 1, 1)
		return p
	}
	var buf bytes.Buffer
	err := gif.EncodeAll(&buf, &gif.GIF{
		Image:  []*image.Paletted{frame(color.White), frame(color.RGBA{R: 255, A: 255})},
		Delay:  []int{10, 10},
		Config: image.Config{Width: 3, Height: 3},
	})
	require.NoError(t, err)

	bm, err := StdCodec{}.Decode(buf.Bytes(), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, bm.Frames)
	assert.True(t, bm.Animated())
	assert.Equal(t, 3, bm.Width)
	assert.Equal(t, 3, bm.Height)
}

func TestStdCodec_DecodeErrors(t *testing.T) {
	codec := StdCodec{}

	_, err := codec.Decode(nil, 0)
	var de *DecodeError
	require.ErrorAs(t, err, &de)

	_, err = codec.Decode([]byte("definitely not an image"), 0)
	require.ErrorAs(t, err, &de)
}

func TestStdCodec_DecodeMeta(t *testing.T) {
	codec := StdCodec{}
	data := encodePNG(t, makeOpaqueBitmap(7, 5))

	// The PNG header (signature + IHDR) fits well inside the first 40 bytes.
	meta, ok := codec.DecodeMeta(data[:40])
	require.True(t, ok)
	assert.Equal(t, 7, meta.Width)
	assert.Equal(t, 5, meta.Height)

	_, ok = codec.DecodeMeta(data[:4])
	assert.False(t, ok)
}

func TestStdCodec_Decompress(t *testing.T) {
	codec := StdCodec{}

	still := makeOpaqueBitmap(4, 4)
	out := codec.Decompress(still)
	require.NotNil(t, out)
	assert.NotSame(t, still, out)
	_, isRGBA := out.Image.(*image.RGBA)
	assert.True(t, isRGBA)
	assert.Equal(t, still.Width, out.Width)
	assert.Equal(t, still.Height, out.Height)

	animated := makeOpaqueBitmap(4, 4)
	animated.Frames = 3
	assert.Same(t, animated, codec.Decompress(animated), "animated bitmaps bypass decompression")

	assert.Nil(t, codec.Decompress(nil))
}

func TestBitmap_CostAndAlpha(t *testing.T) {
	bm := makeOpaqueBitmap(10, 10)
	assert.Equal(t, 100, bm.Cost())

	bm.Scale = 2
	assert.Equal(t, 400, bm.Cost())

	assert.False(t, bm.HasAlpha())
	assert.True(t, makeAlphaBitmap(2, 2).HasAlpha())

	var nilBM *Bitmap
	assert.Equal(t, 0, nilBM.Cost())
	assert.False(t, nilBM.HasAlpha())
	assert.False(t, nilBM.Animated())
}

func TestStoreFormat(t *testing.T) {
	pngBytes := encodePNG(t, makeOpaqueBitmap(2, 2))

	tests := []struct {
		name string
		data []byte
		bm   *Bitmap
		want Format
	}{
		{"png signature wins", pngBytes, makeOpaqueBitmap(2, 2), FormatPNG},
		{"no bytes with alpha", nil, makeAlphaBitmap(2, 2), FormatPNG},
		{"no bytes opaque", nil, makeOpaqueBitmap(2, 2), FormatJPEG},
		{"unrecognized bytes fall through to jpeg", []byte("RIFFxxxxWEBP"), makeAlphaBitmap(2, 2), FormatJPEG},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StoreFormat(tt.data, tt.bm))
		})
	}
}

func TestFormat_String(t *testing.T) {
	assert.Equal(t, "png", FormatPNG.String())
	assert.Equal(t, "jpeg", FormatJPEG.String())
	assert.Equal(t, "gif", FormatGIF.String())
}
