package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noisyImage produces an image that compresses poorly, so re-encoding at
// lower quality measurably shrinks it.
func noisyImage(w, h int) image.Image {
	rng := rand.New(rand.NewSource(42))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(rng.Intn(256)),
				G: uint8(rng.Intn(256)),
				B: uint8(rng.Intn(256)),
				A: 255,
			})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestNormalize_UnderCeilingPassesThrough(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, noisyImage(16, 16), nil))
	data := buf.Bytes()

	out, err := Normalize(data, len(data)+1)
	require.NoError(t, err)
	assert.Equal(t, data, out, "payload under the ceiling must be returned byte-for-byte")
}

func TestNormalize_ExactlyAtCeilingPassesThrough(t *testing.T) {
	data := encodePNG(t, noisyImage(8, 8))

	out, err := Normalize(data, len(data))
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestNormalize_OverCeilingShrinks(t *testing.T) {
	data := encodePNG(t, noisyImage(400, 400))
	ceiling := len(data) / 2

	out, err := Normalize(data, ceiling)
	require.NoError(t, err)
	assert.Less(t, len(out), len(data), "normalized output must be smaller than the input")

	// Output must still decode as an image.
	_, format, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestNormalize_TinyCeilingStillReturnsBestEffort(t *testing.T) {
	data := encodePNG(t, noisyImage(200, 200))

	// Unreachable ceiling forces the quality sweep to bottom out and the
	// downscale path to run.
	out, err := Normalize(data, 1)
	require.NoError(t, err)
	assert.Less(t, len(out), len(data))

	cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 140, cfg.Width)
	assert.Equal(t, 140, cfg.Height)
}

func TestNormalize_UndecodableInput(t *testing.T) {
	garbage := bytes.Repeat([]byte{0xde, 0xad, 0xbe, 0xef}, 1024)

	_, err := Normalize(garbage, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecode))
}

func TestNormalize_GIFInput(t *testing.T) {
	// GIF registration matters: phone galleries occasionally hand over GIFs.
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, noisyImage(64, 64), nil))
	data := buf.Bytes()

	out, err := Normalize(data, len(data)-1)
	require.NoError(t, err)
	_, format, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}
