package receipt

import (
	"bytes"
	"image"
	_ "image/jpeg" // decoders for Telegram photos
	_ "image/png"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/pkg/errors"
)

// DecodeQR returns the distinct QR payloads found in an encoded image. Each
// quarter-turn rotation is tried since phone photos are often sideways.
func DecodeQR(data []byte) ([]string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "decode image")
	}

	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	reader := qrcode.NewQRCodeReader()

	seen := make(map[string]bool)
	var values []string
	candidate := img
	for turn := 0; turn < 4; turn++ {
		if turn > 0 {
			candidate = rotate90(candidate)
		}
		bmp, err := gozxing.NewBinaryBitmapFromImage(candidate)
		if err != nil {
			continue
		}
		res, err := reader.Decode(bmp, hints)
		reader.Reset()
		if err != nil {
			continue
		}
		if text := res.GetText(); text != "" && !seen[text] {
			seen[text] = true
			values = append(values, text)
		}
	}
	return values, nil
}

func rotate90(src image.Image) image.Image {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(b.Max.Y-1-y, x-b.Min.X, src.At(x, y))
		}
	}
	return dst
}
