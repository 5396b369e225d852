package pdf

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

const (
	darkThreshold = 128  // grayscale value below which a pixel counts as ink
	maxSkew       = 45.0 // degrees; larger estimates are treated as noise
	minSkew       = 0.1
	maxCropRatio  = 0.5 // never trim more than half of either dimension
)

// Preprocess prepares a rendered page for OCR: grayscale, deskew, border
// crop, local contrast boost and a light blur to soften scan noise.
func Preprocess(img image.Image) image.Image {
	gray := imaging.Grayscale(img)
	if angle := estimateSkew(gray); math.Abs(angle) >= minSkew {
		gray = imaging.Rotate(gray, -angle, color.White)
	}
	gray = autoCrop(gray)
	gray = equalizeTiles(gray, 64)
	return imaging.Blur(gray, 0.6)
}

// estimateSkew derives the dominant ink orientation from second-order image
// moments of dark pixels.
func estimateSkew(img *image.NRGBA) float64 {
	b := img.Bounds()
	var n, sumX, sumY float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if isDark(img, x, y) {
				n++
				sumX += float64(x)
				sumY += float64(y)
			}
		}
	}
	if n < 100 {
		return 0
	}
	cx, cy := sumX/n, sumY/n

	var mu11, mu20, mu02 float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if isDark(img, x, y) {
				dx, dy := float64(x)-cx, float64(y)-cy
				mu11 += dx * dy
				mu20 += dx * dx
				mu02 += dy * dy
			}
		}
	}
	if mu20 == mu02 && mu11 == 0 {
		return 0
	}
	angle := 0.5 * math.Atan2(2*mu11, mu20-mu02) * 180 / math.Pi
	// Text blocks are wider than tall, so the dominant axis is horizontal.
	// Fold the estimate into the nearest small deviation from level.
	if angle > 45 {
		angle -= 90
	} else if angle < -45 {
		angle += 90
	}
	if math.Abs(angle) > maxSkew {
		return 0
	}
	return angle
}

// autoCrop trims uniform borders around the content. Aggressive cuts are
// rejected so a blank page survives untouched.
func autoCrop(img *image.NRGBA) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return img
	}

	rowHasInk := func(y int) bool {
		count := 0
		for x := b.Min.X; x < b.Max.X; x++ {
			if isDark(img, x, y) {
				count++
				if count*200 >= w { // >0.5% of the row
					return true
				}
			}
		}
		return false
	}
	colHasInk := func(x int) bool {
		count := 0
		for y := b.Min.Y; y < b.Max.Y; y++ {
			if isDark(img, x, y) {
				count++
				if count*200 >= h {
					return true
				}
			}
		}
		return false
	}

	top, bottom := b.Min.Y, b.Max.Y
	for top < bottom && !rowHasInk(top) {
		top++
	}
	for bottom > top && !rowHasInk(bottom-1) {
		bottom--
	}
	left, right := b.Min.X, b.Max.X
	for left < right && !colHasInk(left) {
		left++
	}
	for right > left && !colHasInk(right-1) {
		right--
	}

	if right-left <= 0 || bottom-top <= 0 {
		return img
	}
	if float64(right-left) < float64(w)*maxCropRatio || float64(bottom-top) < float64(h)*maxCropRatio {
		return img
	}

	// Keep a small margin so glyphs at the content edge are not clipped.
	const margin = 8
	rect := image.Rect(
		maxInt(left-margin, b.Min.X), maxInt(top-margin, b.Min.Y),
		minInt(right+margin, b.Max.X), minInt(bottom+margin, b.Max.Y))
	return imaging.Crop(img, rect)
}

// equalizeTiles stretches contrast per tile, a cheap stand-in for adaptive
// histogram equalization that keeps faint scans readable for OCR.
func equalizeTiles(img *image.NRGBA, tile int) *image.NRGBA {
	b := img.Bounds()
	out := imaging.Clone(img)
	for ty := b.Min.Y; ty < b.Max.Y; ty += tile {
		for tx := b.Min.X; tx < b.Max.X; tx += tile {
			rect := image.Rect(tx, ty, minInt(tx+tile, b.Max.X), minInt(ty+tile, b.Max.Y))
			stretchTile(out, rect)
		}
	}
	return out
}

func stretchTile(img *image.NRGBA, rect image.Rectangle) {
	lo, hi := uint8(255), uint8(0)
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			v := grayAt(img, x, y)
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	// Near-uniform tiles (margins, solid fills) are left alone to avoid
	// amplifying noise.
	if hi-lo < 32 {
		return
	}
	scale := 255.0 / float64(hi-lo)
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			v := grayAt(img, x, y)
			nv := uint8(math.Round(float64(v-lo) * scale))
			i := img.PixOffset(x, y)
			img.Pix[i], img.Pix[i+1], img.Pix[i+2] = nv, nv, nv
		}
	}
}

func grayAt(img *image.NRGBA, x, y int) uint8 {
	return img.Pix[img.PixOffset(x, y)]
}

func isDark(img *image.NRGBA, x, y int) bool {
	return grayAt(img, x, y) < darkThreshold
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
