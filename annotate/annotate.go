// Package annotate composites inspector annotations onto evidence images
// and re-encodes them for embedding.
package annotate

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	_ "image/gif"

	"github.com/apex/log"
	"github.com/fogleman/gg"
	"github.com/rwcarlsen/goexif/exif"
	xdraw "golang.org/x/image/draw"

	"pgr-report-service/metrics"
	"pgr-report-service/models"
)

const (
	encodeQuality = 85
	maxDimension  = 1024 // longer side after downscale, in pixels
	strokeWidth   = 3.0

	minPointRadius = 3.0
	maxPointRadius = 8.0
)

// Apply decodes the image, fixes EXIF orientation, downscales oversized
// inputs, draws the annotations in order and re-encodes as JPEG. The second
// return is the caption assembled from the annotations' descriptions. A nil
// byte slice means the image is unusable and must be dropped; a failed
// individual annotation is skipped, not fatal.
func Apply(data []byte, anns []models.Annotation, maxBytes int64) ([]byte, string) {
	caption := Caption(anns)

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		log.Warnf("Skipping image that failed to decode: %v", err)
		metrics.ImagesDroppedTotal.WithLabelValues("decode").Inc()
		return nil, caption
	}
	src = correctOrientation(src, orientation(data))
	src = downscale(src)

	rgba := toRGBA(src)
	dc := gg.NewContextForRGBA(rgba)
	w := float64(rgba.Bounds().Dx())
	h := float64(rgba.Bounds().Dy())
	for i, a := range anns {
		if err := draw(dc, a, w, h); err != nil {
			log.Warnf("Skipping annotation %d: %v", i, err)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgba, &jpeg.Options{Quality: encodeQuality}); err == nil {
		return buf.Bytes(), caption
	}

	// Re-encode failed; fall back to the annotated pixels losslessly,
	// still subject to the byte cap.
	log.Warnf("JPEG re-encode failed, falling back to PNG")
	var fallback bytes.Buffer
	if err := png.Encode(&fallback, rgba); err != nil {
		log.Warnf("Fallback encode failed, image dropped: %v", err)
		metrics.ImagesDroppedTotal.WithLabelValues("encode").Inc()
		return nil, caption
	}
	if maxBytes > 0 && int64(fallback.Len()) > maxBytes {
		log.Warnf("Fallback image exceeds the %d byte cap, dropped", maxBytes)
		metrics.ImagesDroppedTotal.WithLabelValues("oversize").Inc()
		return nil, caption
	}
	return fallback.Bytes(), caption
}

// Caption concatenates the non-empty annotation descriptions, one bulleted
// line per annotation, in annotation order.
func Caption(anns []models.Annotation) string {
	lines := make([]string, 0, len(anns))
	for _, a := range anns {
		if a.Description != "" {
			lines = append(lines, "• "+a.Description)
		}
	}
	return strings.Join(lines, "\n")
}

func draw(dc *gg.Context, a models.Annotation, w, h float64) error {
	c := toPixels(a.Coords, w, h)
	if c.X < 0 || c.Y < 0 || c.X > w || c.Y > h {
		return fmt.Errorf("anchor (%.1f, %.1f) outside image %dx%d", c.X, c.Y, int(w), int(h))
	}

	dc.SetColor(a.Color)
	dc.SetLineWidth(strokeWidth)

	switch a.Kind {
	case models.KindPoint:
		r := clamp(c.W/2, minPointRadius, maxPointRadius)
		dc.DrawCircle(c.X, c.Y, r)
		dc.Fill()
	case models.KindCircle:
		if c.W <= 0 || c.H <= 0 {
			return fmt.Errorf("circle with empty geometry %+v", a.Coords)
		}
		dc.DrawEllipse(c.X+c.W/2, c.Y+c.H/2, c.W/2, c.H/2)
		dc.Stroke()
	default:
		if c.W <= 0 || c.H <= 0 {
			return fmt.Errorf("box with empty geometry %+v", a.Coords)
		}
		dc.DrawRectangle(c.X, c.Y, c.W, c.H)
		dc.Stroke()
	}
	return nil
}

// toPixels maps coordinates onto pixel space. Geometry where every field
// is at most 1 is fractional, anything else is already pixels.
func toPixels(c models.Coords, w, h float64) models.Coords {
	if c.X <= 1 && c.Y <= 1 && c.W <= 1 && c.H <= 1 {
		return models.Coords{X: c.X * w, Y: c.Y * h, W: c.W * w, H: c.H * h}
	}
	return c
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// orientation extracts the EXIF orientation, defaulting to 1.
func orientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return v
}

// correctOrientation bakes the EXIF orientation into the pixels so drawing
// coordinates match what the inspector saw.
func correctOrientation(img image.Image, o int) image.Image {
	if o <= 1 || o > 8 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	var out *image.RGBA
	set := func(x, y int, sx, sy int) { out.Set(x, y, img.At(b.Min.X+sx, b.Min.Y+sy)) }

	switch o {
	case 2: // flip horizontal
		out = image.NewRGBA(image.Rect(0, 0, w, h))
		forEach(w, h, func(x, y int) { set(w-1-x, y, x, y) })
	case 3: // rotate 180
		out = image.NewRGBA(image.Rect(0, 0, w, h))
		forEach(w, h, func(x, y int) { set(w-1-x, h-1-y, x, y) })
	case 4: // flip vertical
		out = image.NewRGBA(image.Rect(0, 0, w, h))
		forEach(w, h, func(x, y int) { set(x, h-1-y, x, y) })
	case 5: // transpose
		out = image.NewRGBA(image.Rect(0, 0, h, w))
		forEach(w, h, func(x, y int) { set(y, x, x, y) })
	case 6: // rotate 90 clockwise
		out = image.NewRGBA(image.Rect(0, 0, h, w))
		forEach(w, h, func(x, y int) { set(h-1-y, x, x, y) })
	case 7: // transverse
		out = image.NewRGBA(image.Rect(0, 0, h, w))
		forEach(w, h, func(x, y int) { set(h-1-y, w-1-x, x, y) })
	case 8: // rotate 270 clockwise
		out = image.NewRGBA(image.Rect(0, 0, h, w))
		forEach(w, h, func(x, y int) { set(y, w-1-x, x, y) })
	}
	return out
}

func forEach(w, h int, fn func(x, y int)) {
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			fn(x, y)
		}
	}
}

// downscale shrinks images whose longer side exceeds maxDimension,
// preserving aspect ratio.
func downscale(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := w
	if h > longest {
		longest = h
	}
	if longest <= maxDimension {
		return img
	}
	scale := float64(maxDimension) / float64(longest)
	nw := int(float64(w) * scale)
	nh := int(float64(h) * scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(rgba, rgba.Bounds(), img, b.Min, xdraw.Src)
	return rgba
}
