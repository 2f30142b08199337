package upload

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
)

// TargetFormat holds the rules an uploaded image must satisfy after
// normalization.
type TargetFormat struct {
	MinWidth  int
	MinHeight int
	// MaxEdge bounds the longer edge; larger images are scaled down.
	MaxEdge int
	// MaxBytes bounds the re-encoded JPEG size.
	MaxBytes int
}

// FeedImage is the default target for feed placements.
func FeedImage() TargetFormat {
	return TargetFormat{MinWidth: 600, MinHeight: 600, MaxEdge: 1920, MaxBytes: 2 << 20}
}

func (f TargetFormat) withDefaults() TargetFormat {
	if f.MinWidth <= 0 {
		f.MinWidth = 600
	}
	if f.MinHeight <= 0 {
		f.MinHeight = 600
	}
	if f.MaxEdge <= 0 {
		f.MaxEdge = 1920
	}
	if f.MaxBytes <= 0 {
		f.MaxBytes = 2 << 20
	}
	return f
}

// Normalize decodes raw image bytes, validates dimensions against the target
// format, flattens any alpha channel over white, scales oversized images
// down, and re-encodes as JPEG under the byte budget.
func Normalize(data []byte, format TargetFormat) ([]byte, error) {
	format = format.withDefaults()

	src, kind, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width < format.MinWidth || height < format.MinHeight {
		return nil, fmt.Errorf("image %dx%d below minimum %dx%d (format %s)",
			width, height, format.MinWidth, format.MinHeight, kind)
	}

	targetW, targetH := width, height
	if longer := max(width, height); longer > format.MaxEdge {
		scale := float64(format.MaxEdge) / float64(longer)
		targetW = int(float64(width) * scale)
		targetH = int(float64(height) * scale)
	}

	// Flatten onto a white background; JPEG has no alpha channel.
	flat := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	xdraw.Draw(flat, flat.Bounds(), image.NewUniform(color.White), image.Point{}, xdraw.Src)
	if targetW == width && targetH == height {
		xdraw.Draw(flat, flat.Bounds(), src, bounds.Min, xdraw.Over)
	} else {
		xdraw.ApproxBiLinear.Scale(flat, flat.Bounds(), src, bounds, xdraw.Over, nil)
	}

	for _, quality := range []int{90, 80, 70, 60, 50} {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		if buf.Len() <= format.MaxBytes {
			return buf.Bytes(), nil
		}
	}
	return nil, fmt.Errorf("image exceeds %d bytes even at lowest quality", format.MaxBytes)
}
