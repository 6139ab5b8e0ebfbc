package algorithm

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// Raster helpers shared by the in-process adapters. The classical algorithms
// all work on a fixed-size grayscale raster of the supplied face crop.

// decodeGray decodes an image and returns it as a width x height grayscale
// raster with values in [0, 255]. Fails with ErrImageDecode when the bytes do
// not parse as a supported image format.
func decodeGray(data []byte, width, height int) ([][]float64, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	return toGrayscale(resizeImage(img, width, height)), nil
}

// resizeImage scales an image to the specified dimensions.
func resizeImage(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// toGrayscale converts an image to a 2D array of grayscale values (0-255),
// indexed [x][y].
func toGrayscale(img *image.RGBA) [][]float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	gray := make([][]float64, width)
	for x := range width {
		gray[x] = make([]float64, height)
		for y := range height {
			r, g, b, _ := img.At(x, y).RGBA()
			// ITU-R BT.601 luma formula.
			luma := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			gray[x][y] = luma
		}
	}

	return gray
}

// computeDCT computes the Discrete Cosine Transform of a square grayscale
// raster (DCT-II, unnormalized).
func computeDCT(gray [][]float64) [][]float64 {
	size := len(gray)
	dct := make([][]float64, size)
	for i := range dct {
		dct[i] = make([]float64, size)
	}

	// Precompute cosine values for efficiency.
	cosTable := make([][]float64, size)
	for i := range cosTable {
		cosTable[i] = make([]float64, size)
		for j := range size {
			cosTable[i][j] = math.Cos(math.Pi * float64(i) * (2*float64(j) + 1) / (2 * float64(size)))
		}
	}

	for u := range size {
		for v := range size {
			var sum float64
			for x := range size {
				for y := range size {
					sum += gray[x][y] * cosTable[u][x] * cosTable[v][y]
				}
			}
			dct[u][v] = sum
		}
	}

	return dct
}

// integralImage computes the summed-area table of a grayscale raster.
// ii[x][y] is the sum of all pixels in the rectangle [0,x) x [0,y).
func integralImage(gray [][]float64) [][]float64 {
	width := len(gray)
	height := len(gray[0])

	ii := make([][]float64, width+1)
	for x := range ii {
		ii[x] = make([]float64, height+1)
	}
	for x := 1; x <= width; x++ {
		for y := 1; y <= height; y++ {
			ii[x][y] = gray[x-1][y-1] + ii[x-1][y] + ii[x][y-1] - ii[x-1][y-1]
		}
	}
	return ii
}

// rectSum returns the pixel sum of the rectangle [x, x+w) x [y, y+h) using a
// summed-area table.
func rectSum(ii [][]float64, x, y, w, h int) float64 {
	return ii[x+w][y+h] - ii[x][y+h] - ii[x+w][y] + ii[x][y]
}

// rasterVariance returns the pixel intensity variance of a grayscale raster.
// Used to reject blank crops before encoding.
func rasterVariance(gray [][]float64) float64 {
	var sum, count float64
	for x := range gray {
		for y := range gray[x] {
			sum += gray[x][y]
			count++
		}
	}
	if count == 0 {
		return 0
	}
	mean := sum / count

	var variance float64
	for x := range gray {
		for y := range gray[x] {
			d := gray[x][y] - mean
			variance += d * d
		}
	}
	return variance / count
}

// fullFrameBBox returns a bounding box covering the whole raster, used by the
// in-process adapters which receive pre-cropped faces from the capture layer.
func fullFrameBBox(width, height int) []float64 {
	return []float64{0, 0, float64(width), float64(height)}
}
