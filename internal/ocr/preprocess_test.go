package ocr

import (
	"image"
	"image/color"
	"testing"
)

// bimodal builds a synthetic page: dark "ink" square on a light background.
func bimodal(dark, light uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			v := light
			if x >= 5 && x < 15 && y >= 5 && y < 15 {
				v = dark
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func TestOtsuThresholdSeparatesModes(t *testing.T) {
	img := bimodal(40, 220)
	threshold := otsuThreshold(img)
	if threshold < 40 || threshold >= 220 {
		t.Errorf("threshold = %d, want between the two modes (40, 220)", threshold)
	}
}

func TestOtsuThresholdUniformImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 10, 10))
	for i := range img.Pix {
		img.Pix[i] = 100
	}
	// No second mode; any value is fine as long as it does not panic.
	_ = otsuThreshold(img)

	empty := image.NewGray(image.Rect(0, 0, 0, 0))
	if got := otsuThreshold(empty); got != 128 {
		t.Errorf("threshold of empty image = %d, want fallback 128", got)
	}
}

func TestApplyThresholdBinarizes(t *testing.T) {
	img := bimodal(40, 220)
	applyThreshold(img, otsuThreshold(img))

	for i, v := range img.Pix {
		if v != 0 && v != 255 {
			t.Fatalf("pixel %d = %d after binarization, want 0 or 255", i, v)
		}
	}
}

// A single speckle on a clean background disappears under the median filter.
func TestMedianDenoiseRemovesSpeckle(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 9, 9))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	img.SetGray(4, 4, color.Gray{Y: 0})

	out := medianDenoise(img)
	if got := out.GrayAt(4, 4).Y; got != 255 {
		t.Errorf("speckle survived denoising: pixel = %d, want 255", got)
	}
}

func TestMedian9(t *testing.T) {
	if got := median9([9]uint8{9, 1, 8, 2, 7, 3, 6, 4, 5}); got != 5 {
		t.Errorf("median9 = %d, want 5", got)
	}
	if got := median9([9]uint8{0, 0, 0, 0, 255, 255, 255, 255, 255}); got != 255 {
		t.Errorf("median9 = %d, want 255", got)
	}
}

func TestPreprocessRecipes(t *testing.T) {
	src := bimodal(40, 220)

	// Empty recipe passes the image through untouched.
	if out := Preprocess(src, Recipe{}); out != image.Image(src) {
		t.Error("empty recipe should return the input image")
	}

	// Full recipe produces a binary image.
	out := Preprocess(src, DefaultRecipe())
	gray, ok := out.(*image.Gray)
	if !ok {
		t.Fatalf("Preprocess returned %T, want *image.Gray", out)
	}
	for i, v := range gray.Pix {
		if v != 0 && v != 255 {
			t.Fatalf("pixel %d = %d, want binary output", i, v)
		}
	}
}
