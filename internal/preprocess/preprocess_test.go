package preprocess

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x += 2 {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestInspect(t *testing.T) {
	meta, err := Inspect(bytes.NewReader(pngBytes(t, 120, 80)))
	require.NoError(t, err)
	assert.Equal(t, 120, meta.Width)
	assert.Equal(t, 80, meta.Height)
	assert.Equal(t, "png", meta.Format)
}

func TestInspectRejectsGarbage(t *testing.T) {
	_, err := Inspect(bytes.NewReader([]byte("not an image")))
	require.Error(t, err)
}

func TestNormalizeKeepsSmallImages(t *testing.T) {
	out, meta, err := Normalize(bytes.NewReader(pngBytes(t, 300, 200)))
	require.NoError(t, err)
	assert.Equal(t, 300, meta.Width)
	assert.Equal(t, 200, meta.Height)
	assert.Equal(t, "png", meta.Format)

	// Output must still decode as a PNG of the same size.
	check, err := Inspect(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 300, check.Width)
}

func TestNormalizeDownscalesLargeImages(t *testing.T) {
	out, meta, err := Normalize(bytes.NewReader(pngBytes(t, MaxDimension*2, MaxDimension)))
	require.NoError(t, err)
	assert.Equal(t, MaxDimension, meta.Width)
	assert.Equal(t, MaxDimension/2, meta.Height)
	assert.NotEmpty(t, out)
}
