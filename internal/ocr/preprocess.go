package ocr

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"

	"github.com/disintegration/gift"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Contrast(50) scales intensities by 2 around the midpoint; Threshold takes a
// percentage, so 128 of 255.
var preprocessFilters = gift.New(
	gift.Grayscale(),
	gift.Contrast(50),
	gift.Threshold(128.0/255.0*100),
	gift.Median(3, false),
)

// DecodeImage decodes any registered format (png, jpeg, gif, bmp, tiff, webp).
func DecodeImage(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// Preprocess runs the fixed OCR preparation: grayscale, contrast x2, binarization
// at 128, then a 3x3 median filter.
func Preprocess(src image.Image) *image.Gray {
	dst := image.NewGray(preprocessFilters.Bounds(src.Bounds()))
	if len(dst.Pix) == 0 {
		return dst
	}
	preprocessFilters.Draw(dst, src)
	return dst
}

// preprocessFile decodes in, preprocesses it and writes a PNG to out.
func preprocessFile(in, out string) error {
	f, err := os.Open(in)
	if err != nil {
		return err
	}
	img, _, err := DecodeImage(f)
	_ = f.Close()
	if err != nil {
		return err
	}
	o, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := png.Encode(o, Preprocess(img)); err != nil {
		_ = o.Close()
		return fmt.Errorf("encode preprocessed image: %w", err)
	}
	return o.Close()
}
