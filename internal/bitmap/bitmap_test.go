package bitmap

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// halfBlack returns a w x h image whose left half is black and right half
// white.
func halfBlack(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{A: 0xff}
			if x >= w/2 {
				c = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestFit(t *testing.T) {
	cases := []struct {
		w, h, wantW, wantH int
	}{
		{1152, 272, 576, 136},
		{100, 100, 136, 136},
		{2000, 100, 576, 28},
		{576, 136, 576, 136},
		{0, 10, 0, 0},
	}
	for _, tc := range cases {
		w, h := Fit(tc.w, tc.h)
		assert.Equal(t, [2]int{tc.wantW, tc.wantH}, [2]int{w, h}, "Fit(%d, %d)", tc.w, tc.h)
	}
}

func TestConvertPNG(t *testing.T) {
	img, err := Convert(bytes.NewReader(pngBytes(t, halfBlack(200, 50))))
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 544, 136), img.Bounds())
	assert.Len(t, img.Palette, 2)
	assert.False(t, isWhite(img, 10, 68))
	assert.True(t, isWhite(img, 530, 68))
}

func TestConvertJPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, halfBlack(1000, 1000), nil))

	img, err := Convert(&buf)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 136, 136), img.Bounds())
}

func TestConvertRejectsOtherFormats(t *testing.T) {
	_, err := Convert(strings.NewReader("GIF89a\x01\x00\x01\x00"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Convert(strings.NewReader("plain text"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestEncodeLayout(t *testing.T) {
	img, err := Convert(bytes.NewReader(pngBytes(t, halfBlack(200, 50))))
	require.NoError(t, err)

	bmp := Encode(img)
	const stride = 68
	require.Len(t, bmp, 62+stride*136)
	assert.Equal(t, "BM", string(bmp[:2]))
	assert.Equal(t, uint32(len(bmp)), binary.LittleEndian.Uint32(bmp[2:]))
	assert.Equal(t, uint32(62), binary.LittleEndian.Uint32(bmp[10:]))
	assert.Equal(t, int32(544), int32(binary.LittleEndian.Uint32(bmp[18:])))
	assert.Equal(t, int32(136), int32(binary.LittleEndian.Uint32(bmp[22:])))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(bmp[28:]), "bits per pixel")
	assert.Equal(t, []byte{0, 0, 0, 0, 0xff, 0xff, 0xff, 0}, bmp[54:62])

	row := bmp[62 : 62+stride]
	assert.Equal(t, byte(0x00), row[0])
	assert.Equal(t, byte(0xff), row[stride-1])
}

func TestEncodePadsRows(t *testing.T) {
	img := image.NewPaletted(image.Rect(0, 0, 3, 2), monochrome)
	img.SetColorIndex(0, 0, 1)
	img.SetColorIndex(2, 1, 1)

	bmp := Encode(img)
	require.Len(t, bmp, 62+4*2)
	// Bottom row first.
	assert.Equal(t, []byte{0x20, 0, 0, 0}, bmp[62:66])
	assert.Equal(t, []byte{0x80, 0, 0, 0}, bmp[66:70])
}
