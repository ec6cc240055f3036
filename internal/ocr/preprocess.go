package ocr

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Recipe is the fixed preprocessing chain applied before recognition:
// grayscale, automatic global-threshold binarization, then denoising.
// Steps can be switched off individually for documents that scan cleanly.
type Recipe struct {
	Grayscale bool
	Binarize  bool
	Denoise   bool
}

// DefaultRecipe enables the full chain.
func DefaultRecipe() Recipe {
	return Recipe{Grayscale: true, Binarize: true, Denoise: true}
}

// Preprocess applies the recipe to one page image.
func Preprocess(img image.Image, r Recipe) image.Image {
	if !r.Grayscale && !r.Binarize && !r.Denoise {
		return img
	}
	gray := toGray(imaging.Grayscale(img))
	if r.Binarize {
		applyThreshold(gray, otsuThreshold(gray))
	}
	if r.Denoise {
		gray = medianDenoise(gray)
	}
	return gray
}

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return gray
}

// otsuThreshold picks the global threshold that maximizes between-class
// variance of the intensity histogram.
func otsuThreshold(gray *image.Gray) uint8 {
	var hist [256]int
	total := 0
	b := gray.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := gray.Pix[(y-b.Min.Y)*gray.Stride:]
		for x := 0; x < b.Dx(); x++ {
			hist[row[x]]++
			total++
		}
	}
	if total == 0 {
		return 128
	}

	var sum float64
	for i, n := range hist {
		sum += float64(i) * float64(n)
	}

	var sumBack, weightBack float64
	var best float64
	threshold := uint8(128)
	for t := 0; t < 256; t++ {
		weightBack += float64(hist[t])
		if weightBack == 0 {
			continue
		}
		weightFore := float64(total) - weightBack
		if weightFore == 0 {
			break
		}
		sumBack += float64(t) * float64(hist[t])
		meanBack := sumBack / weightBack
		meanFore := (sum - sumBack) / weightFore
		between := weightBack * weightFore * (meanBack - meanFore) * (meanBack - meanFore)
		if between > best {
			best = between
			threshold = uint8(t)
		}
	}
	return threshold
}

func applyThreshold(gray *image.Gray, threshold uint8) {
	for i, v := range gray.Pix {
		if v > threshold {
			gray.Pix[i] = 255
		} else {
			gray.Pix[i] = 0
		}
	}
}

// medianDenoise applies a 3x3 median filter; on a binarized page this removes
// isolated speckles without eroding glyph strokes.
func medianDenoise(gray *image.Gray) *image.Gray {
	b := gray.Bounds()
	out := image.NewGray(b)
	copy(out.Pix, gray.Pix)

	w, h := b.Dx(), b.Dy()
	var window [9]uint8
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			k := 0
			for dy := -1; dy <= 1; dy++ {
				row := gray.Pix[(y+dy)*gray.Stride:]
				for dx := -1; dx <= 1; dx++ {
					window[k] = row[x+dx]
					k++
				}
			}
			out.Pix[y*out.Stride+x] = median9(window)
		}
	}
	return out
}

func median9(w [9]uint8) uint8 {
	// insertion sort; 9 elements, not worth anything cleverer
	for i := 1; i < len(w); i++ {
		for j := i; j > 0 && w[j] < w[j-1]; j-- {
			w[j], w[j-1] = w[j-1], w[j]
		}
	}
	return w[4]
}
