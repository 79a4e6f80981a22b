// Package imaging shrinks uploaded images under a byte-size ceiling before
// they are shipped to the blob store.
package imaging

import (
	"bytes"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
)

// ErrDecode is returned when the payload cannot be decoded as an image.
// Callers must treat this as fatal for the request.
var ErrDecode = eris.New("imaging: undecodable image")

// Re-encode quality sweep: start high, step down, never below the floor.
const (
	startQuality = 80
	minQuality   = 30
	qualityStep  = 10

	// downscaleRatio is applied once if the quality sweep alone cannot
	// reach the ceiling.
	downscaleRatio = 0.7
)

// Normalize returns a payload at or under maxBytes whenever that is
// achievable without dropping below the minimum quality floor; otherwise it
// returns its best effort, which is always smaller than the input.
//
// Inputs already at or under the ceiling are returned byte-for-byte
// unchanged. Everything else is re-encoded as JPEG at decreasing quality,
// then downscaled to 70% of the original dimensions as a last resort. The
// search is a greedy heuristic, not a minimal-quality-loss guarantee.
func Normalize(data []byte, maxBytes int) ([]byte, error) {
	if len(data) <= maxBytes {
		return data, nil
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, eris.Wrap(ErrDecode, err.Error())
	}

	for q := startQuality; q >= minQuality; q -= qualityStep {
		encoded, err := encodeJPEG(img, q)
		if err != nil {
			return nil, err
		}
		if len(encoded) <= maxBytes {
			zap.L().Debug("imaging: normalized by re-encode",
				zap.String("format", format),
				zap.Int("quality", q),
				zap.Int("input_bytes", len(data)),
				zap.Int("output_bytes", len(encoded)),
			)
			return encoded, nil
		}
	}

	// Quality alone was not enough; shrink the canvas once and re-encode
	// at the floor.
	scaled := downscale(img, downscaleRatio)
	encoded, err := encodeJPEG(scaled, minQuality)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("imaging: normalized by downscale",
		zap.String("format", format),
		zap.Int("input_bytes", len(data)),
		zap.Int("output_bytes", len(encoded)),
		zap.Bool("under_ceiling", len(encoded) <= maxBytes),
	)
	return encoded, nil
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, eris.Wrap(err, "imaging: encode jpeg")
	}
	return buf.Bytes(), nil
}

func downscale(img image.Image, ratio float64) image.Image {
	bounds := img.Bounds()
	w := int(float64(bounds.Dx()) * ratio)
	h := int(float64(bounds.Dy()) * ratio)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
