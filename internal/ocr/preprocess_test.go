package ocr

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreprocessBinarizes(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			c := color.RGBA{R: 230, G: 230, B: 230, A: 255}
			if x < 5 {
				c = color.RGBA{R: 30, G: 30, B: 30, A: 255}
			}
			img.Set(x, y, c)
		}
	}

	out := Preprocess(img)
	require.Equal(t, image.Rect(0, 0, 10, 10), out.Bounds())
	for _, p := range out.Pix {
		assert.True(t, p == 0 || p == 255)
	}
	assert.Equal(t, uint8(0), out.GrayAt(1, 5).Y)
	assert.Equal(t, uint8(255), out.GrayAt(8, 5).Y)
}

func TestPreprocessRemovesSpeckles(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 9, 9))
	for i := range img.Pix {
		img.Pix[i] = 240
	}
	img.SetGray(4, 4, color.Gray{Y: 0})
	img.SetGray(0, 0, color.Gray{Y: 255})

	out := Preprocess(img)
	assert.Equal(t, uint8(255), out.GrayAt(4, 4).Y)
}

func TestPreprocessThresholdsAroundMidpoint(t *testing.T) {
	for _, tc := range []struct {
		gray uint8
		want uint8
	}{
		{140, 255},
		{120, 0},
		{250, 255},
		{10, 0},
	} {
		img := image.NewGray(image.Rect(0, 0, 4, 4))
		for i := range img.Pix {
			img.Pix[i] = tc.gray
		}
		out := Preprocess(img)
		for _, p := range out.Pix {
			assert.Equal(t, tc.want, p, "input %d", tc.gray)
		}
	}
}

func TestPreprocessEmptyImage(t *testing.T) {
	out := Preprocess(image.NewGray(image.Rect(0, 0, 0, 0)))
	assert.Empty(t, out.Pix)
}

func TestPreprocessFileWritesPNG(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	out := filepath.Join(dir, "out.png")
	require.NoError(t, os.WriteFile(in, pngBytes(6, 6), 0o600))

	require.NoError(t, preprocessFile(in, out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 6, img.Bounds().Dx())

	assert.Error(t, preprocessFile(filepath.Join(dir, "missing.png"), out))
}
