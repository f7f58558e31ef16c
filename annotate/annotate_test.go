package annotate

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"pgr-report-service/models"
)

// createTestImage creates a grayscale JPEG with the given dimensions.
func createTestImage(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 180, G: 180, B: 180, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func red() color.RGBA { return color.RGBA{R: 214, G: 0, B: 0, A: 255} }

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Failed to decode annotated image: %v", err)
	}
	return img
}

func TestApplyDrawsBox(t *testing.T) {
	src := createTestImage(t, 200, 200)
	anns := []models.Annotation{{
		Kind:   models.KindBox,
		Color:  red(),
		Coords: models.Coords{X: 0.25, Y: 0.25, W: 0.5, H: 0.5},
	}}

	out, _ := Apply(src, anns, 0)
	if out == nil {
		t.Fatal("Apply returned no image")
	}

	img := decode(t, out)
	// Top edge of the box runs through (100, 50); the flat background is
	// gray, so a red-dominant pixel proves the stroke landed.
	r, g, _, _ := img.At(100, 50).RGBA()
	if r <= g+0x2000 {
		t.Errorf("expected red stroke at box edge, got r=%d g=%d", r>>8, g>>8)
	}
}

func TestApplyPointDrawsFilledCircle(t *testing.T) {
	src := createTestImage(t, 200, 200)
	anns := []models.Annotation{{
		Kind:   models.KindPoint,
		Color:  red(),
		Coords: models.Coords{X: 100, Y: 100, W: 12},
	}}

	out, _ := Apply(src, anns, 0)
	img := decode(t, out)
	r, g, _, _ := img.At(100, 100).RGBA()
	if r <= g+0x2000 {
		t.Errorf("expected filled point at center, got r=%d g=%d", r>>8, g>>8)
	}
}

func TestApplySkipsBadAnnotationKeepsRest(t *testing.T) {
	src := createTestImage(t, 200, 200)
	anns := []models.Annotation{
		// Zero geometry box cannot be drawn and must be skipped.
		{Kind: models.KindBox, Color: red()},
		{Kind: models.KindPoint, Color: red(), Coords: models.Coords{X: 100, Y: 100, W: 16}},
	}

	out, _ := Apply(src, anns, 0)
	if out == nil {
		t.Fatal("a failed annotation must not drop the image")
	}
	img := decode(t, out)
	r, g, _, _ := img.At(100, 100).RGBA()
	if r <= g+0x2000 {
		t.Errorf("remaining annotations must still draw, got r=%d g=%d", r>>8, g>>8)
	}
}

func TestApplyUndecodableImage(t *testing.T) {
	out, caption := Apply([]byte("garbage"), []models.Annotation{
		{Kind: models.KindBox, Description: "desc"},
	}, 0)
	if out != nil {
		t.Errorf("garbage input must yield no image")
	}
	if caption != "• desc" {
		t.Errorf("caption should still be assembled, got %q", caption)
	}
}

func TestApplyDownscalesOversizedImage(t *testing.T) {
	src := createTestImage(t, 2048, 1024)
	out, _ := Apply(src, nil, 0)
	if out == nil {
		t.Fatal("Apply returned no image")
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("Failed to decode output config: %v", err)
	}
	if cfg.Width > maxDimension || cfg.Height > maxDimension {
		t.Errorf("output %dx%d exceeds max dimension %d", cfg.Width, cfg.Height, maxDimension)
	}
	if cfg.Width != maxDimension {
		t.Errorf("longer side should land at %d, got %d", maxDimension, cfg.Width)
	}
}

func TestCaption(t *testing.T) {
	anns := []models.Annotation{
		{Description: "primeiro"},
		{Description: ""},
		{Description: "segundo"},
	}
	want := "• primeiro\n• segundo"
	if got := Caption(anns); got != want {
		t.Errorf("Caption = %q, want %q", got, want)
	}
	if got := Caption(nil); got != "" {
		t.Errorf("Caption(nil) = %q, want empty", got)
	}
}

func TestClamp(t *testing.T) {
	if got := clamp(1, minPointRadius, maxPointRadius); got != minPointRadius {
		t.Errorf("clamp(1) = %v", got)
	}
	if got := clamp(50, minPointRadius, maxPointRadius); got != maxPointRadius {
		t.Errorf("clamp(50) = %v", got)
	}
	if got := clamp(5, minPointRadius, maxPointRadius); got != 5 {
		t.Errorf("clamp(5) = %v", got)
	}
}
