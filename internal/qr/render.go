package qr

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/makiuchi-d/gozxing/qrcode/decoder"
)

// QuietZone is the border, in modules, around a rendered code.
const QuietZone = 4

const (
	darkCell  = "  "
	lightCell = "██"
)

// Code is a rendered QR code, one bit per module, quiet zone included.
type Code struct {
	matrix *gozxing.BitMatrix
}

// Render encodes text with low error correction, the level health
// certificate issuers use.
func Render(text string) (*Code, error) {
	hints := map[gozxing.EncodeHintType]interface{}{
		gozxing.EncodeHintType_ERROR_CORRECTION: decoder.ErrorCorrectionLevel_L,
		gozxing.EncodeHintType_MARGIN:           QuietZone,
	}
	matrix, err := qrcode.NewQRCodeWriter().Encode(text, gozxing.BarcodeFormat_QR_CODE, 0, 0, hints)
	if err != nil {
		return nil, fmt.Errorf("encoding QR code: %w", err)
	}
	return &Code{matrix: matrix}, nil
}

// Size returns the width of the code in modules.
func (c *Code) Size() int {
	return c.matrix.GetWidth()
}

// Dark reports whether the module at x, y is dark.
func (c *Code) Dark(x, y int) bool {
	return c.matrix.Get(x, y)
}

// String draws the code with block characters, inverted so that it scans
// from a terminal with a dark background.
func (c *Code) String() string {
	var sb strings.Builder
	w, h := c.matrix.GetWidth(), c.matrix.GetHeight()
	sb.Grow((w*len(lightCell) + 1) * h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if c.matrix.Get(x, y) {
				sb.WriteString(darkCell)
			} else {
				sb.WriteString(lightCell)
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Image returns the code as a grayscale image with scale pixels per module.
func (c *Code) Image(scale int) image.Image {
	if scale < 1 {
		scale = 1
	}
	w, h := c.matrix.GetWidth(), c.matrix.GetHeight()
	img := image.NewGray(image.Rect(0, 0, w*scale, h*scale))
	for y := 0; y < h*scale; y++ {
		for x := 0; x < w*scale; x++ {
			v := color.Gray{Y: 0xff}
			if c.matrix.Get(x/scale, y/scale) {
				v = color.Gray{}
			}
			img.SetGray(x, y, v)
		}
	}
	return img
}

// WritePNG writes the code to w as a PNG image.
func (c *Code) WritePNG(w io.Writer, scale int) error {
	if err := png.Encode(w, c.Image(scale)); err != nil {
		return fmt.Errorf("writing PNG: %w", err)
	}
	return nil
}
