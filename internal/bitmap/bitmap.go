// Package bitmap converts PNG and JPEG images into the 1-bit BMP frames the
// glasses display accepts.
package bitmap

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"golang.org/x/image/draw"
)

// Display bounds in pixels.
const (
	MaxWidth  = 576
	MaxHeight = 136
)

// ErrUnsupportedFormat is returned for inputs that are not PNG or JPEG.
var ErrUnsupportedFormat = errors.New("unsupported image format")

var monochrome = color.Palette{color.Gray{Y: 0}, color.Gray{Y: 0xff}}

// Fit scales w x h to fit within the display bounds, keeping the aspect
// ratio. Images are scaled up as well as down.
func Fit(w, h int) (int, int) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	var nw, nh int
	if w*MaxHeight <= h*MaxWidth {
		nw, nh = w*MaxHeight/h, MaxHeight
	} else {
		nw, nh = MaxWidth, h*MaxWidth/w
	}
	return max(nw, 1), max(nh, 1)
}

// Convert decodes a PNG or JPEG, fits it to the display, converts it to
// grayscale and dithers it to black and white.
func Convert(r io.Reader) (*image.Paletted, error) {
	src, format, err := image.Decode(r)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, ErrUnsupportedFormat
		}
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if format != "png" && format != "jpeg" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	w, h := Fit(src.Bounds().Dx(), src.Bounds().Dy())
	if w == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrUnsupportedFormat)
	}
	gray := image.NewGray(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(gray, gray.Bounds(), src, src.Bounds(), draw.Src, nil)

	out := image.NewPaletted(gray.Bounds(), monochrome)
	draw.FloydSteinberg.Draw(out, out.Bounds(), gray, image.Point{})
	return out, nil
}

// Encode writes img as an uncompressed bottom-up 1-bit BMP. Palette index 0
// is black and index 1 is white.
func Encode(img *image.Paletted) []byte {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	stride := ((w + 31) / 32) * 4
	pixelLen := uint32(stride * h)
	const headerLen = 14 + 40 + 8

	buf := &bytes.Buffer{}
	buf.Grow(headerLen + int(pixelLen))
	buf.WriteString("BM")
	binary.Write(buf, binary.LittleEndian, uint32(headerLen)+pixelLen)
	binary.Write(buf, binary.LittleEndian, uint32(0))
	binary.Write(buf, binary.LittleEndian, uint32(headerLen))

	binary.Write(buf, binary.LittleEndian, uint32(40))
	binary.Write(buf, binary.LittleEndian, int32(w))
	binary.Write(buf, binary.LittleEndian, int32(h))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint32(0))
	binary.Write(buf, binary.LittleEndian, pixelLen)
	binary.Write(buf, binary.LittleEndian, int32(2835))
	binary.Write(buf, binary.LittleEndian, int32(2835))
	binary.Write(buf, binary.LittleEndian, uint32(2))
	binary.Write(buf, binary.LittleEndian, uint32(2))
	buf.Write([]byte{0, 0, 0, 0, 0xff, 0xff, 0xff, 0})

	row := make([]byte, stride)
	for y := b.Max.Y - 1; y >= b.Min.Y; y-- {
		clear(row)
		for x := 0; x < w; x++ {
			if isWhite(img, b.Min.X+x, y) {
				row[x/8] |= 0x80 >> (x % 8)
			}
		}
		buf.Write(row)
	}
	return buf.Bytes()
}

func isWhite(img *image.Paletted, x, y int) bool {
	c := color.GrayModel.Convert(img.Palette[img.ColorIndexAt(x, y)]).(color.Gray)
	return c.Y >= 0x80
}

// EncodeBase64 returns the BMP encoding of img as standard base64, the form
// the display's bitmap layout expects.
func EncodeBase64(img *image.Paletted) string {
	return encodeRaw(Encode(img))
}

func encodeRaw(bmp []byte) string {
	return base64.StdEncoding.EncodeToString(bmp)
}
