package algorithm

import (
	"context"
	"math"
)

// In-process adapters for the classical algorithms. These operate on the face
// crops supplied by the capture layer: the whole image is treated as a single
// face, except blank crops (near-zero intensity variance) which yield zero
// detections.

// minCropVariance rejects blank or near-blank crops before encoding.
const minCropVariance = 5.0

// Fixed descriptor dimensionalities. These are structural: changing any of
// them invalidates every stored vector for that algorithm.
const (
	haarDim   = 64   // 16 anchors x 2 scales x 2 orientations
	hogDim    = 576  // 8x8 cells x 9 orientation bins
	lbphDim   = 4096 // 4x4 grid x 256-bin histograms
	eigenDim  = 128  // low-frequency DCT coefficients, zigzag order
	fisherDim = 64   // as eigen, over a variance-normalized raster
)

// Default confidence thresholds per classical algorithm.
const (
	haarDefaultThreshold   = 0.55
	hogDefaultThreshold    = 0.60
	lbphDefaultThreshold   = 0.50
	eigenDefaultThreshold  = 0.60
	fisherDefaultThreshold = 0.60
)

// classicalAdapter implements Adapter for the in-process algorithms. The
// variants differ only in the descriptor function and the distance metric.
type classicalAdapter struct {
	id         string
	dim        int
	threshold  float64
	rasterSize int
	encode     func(gray [][]float64) []float32
	distance   func(a, b []float32) float64
	confidence func(distance float64) float64
}

func (c *classicalAdapter) ID() string                { return c.id }
func (c *classicalAdapter) Dim() int                  { return c.dim }
func (c *classicalAdapter) DefaultThreshold() float64 { return c.threshold }

func (c *classicalAdapter) DetectAndEncode(ctx context.Context, image []byte) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	gray, err := decodeGray(image, c.rasterSize, c.rasterSize)
	if err != nil {
		return nil, err
	}

	if rasterVariance(gray) < minCropVariance {
		return nil, nil // blank crop, no face
	}

	return []Detection{{
		BBox:   fullFrameBBox(c.rasterSize, c.rasterSize),
		Vector: c.encode(gray),
		Score:  1.0,
	}}, nil
}

func (c *classicalAdapter) Distance(a, b []float32) (float64, error) {
	if err := checkDims(c.dim, a, b); err != nil {
		return 0, err
	}
	return c.distance(a, b), nil
}

func (c *classicalAdapter) Confidence(distance float64) float64 {
	return c.confidence(distance)
}

func pickThreshold(opts Options, fallback float64) float64 {
	if opts.Threshold > 0 {
		return opts.Threshold
	}
	return fallback
}

func newHaarAdapter(opts Options) Adapter {
	return &classicalAdapter{
		id:         HaarCascade,
		dim:        haarDim,
		threshold:  pickThreshold(opts, haarDefaultThreshold),
		rasterSize: 32,
		encode:     encodeHaar,
		distance:   euclideanDistance,
		confidence: inverseConfidence,
	}
}

func newHOGAdapter(opts Options) Adapter {
	return &classicalAdapter{
		id:         HOG,
		dim:        hogDim,
		threshold:  pickThreshold(opts, hogDefaultThreshold),
		rasterSize: 64,
		encode:     encodeHOG,
		distance:   euclideanDistance,
		confidence: inverseConfidence,
	}
}

func newLBPHAdapter(opts Options) Adapter {
	return &classicalAdapter{
		id:         LBPH,
		dim:        lbphDim,
		threshold:  pickThreshold(opts, lbphDefaultThreshold),
		rasterSize: 64,
		encode:     encodeLBPH,
		distance:   chiSquaredDistance,
		confidence: inverseConfidence,
	}
}

func newEigenAdapter(opts Options) Adapter {
	return &classicalAdapter{
		id:         Eigenfaces,
		dim:        eigenDim,
		threshold:  pickThreshold(opts, eigenDefaultThreshold),
		rasterSize: 32,
		encode:     func(gray [][]float64) []float32 { return encodeDCTProjection(gray, eigenDim) },
		distance:   euclideanDistance,
		confidence: inverseConfidence,
	}
}

func newFisherAdapter(opts Options) Adapter {
	return &classicalAdapter{
		id:         Fisherfaces,
		dim:        fisherDim,
		threshold:  pickThreshold(opts, fisherDefaultThreshold),
		rasterSize: 32,
		encode: func(gray [][]float64) []float32 {
			return encodeDCTProjection(normalizeRaster(gray), fisherDim)
		},
		distance:   euclideanDistance,
		confidence: inverseConfidence,
	}
}

// encodeHaar computes two-rectangle Haar-like feature responses on a 32x32
// raster: for each of 16 anchor positions, 2 window scales and 2 orientations,
// the difference between adjacent rectangle sums, normalized by window area.
func encodeHaar(gray [][]float64) []float32 {
	const size = 32
	ii := integralImage(gray)

	features := make([]float32, 0, haarDim)
	for _, s := range []int{4, 8} {
		for i := range 4 {
			for j := range 4 {
				// Anchors spread evenly so both rectangles stay in bounds.
				x := i * (size - 2*s) / 3
				y := j * (size - 2*s) / 3

				area := float64(s * s * 255)
				horizontal := (rectSum(ii, x, y, s, s) - rectSum(ii, x+s, y, s, s)) / area
				vertical := (rectSum(ii, x, y, s, s) - rectSum(ii, x, y+s, s, s)) / area
				features = append(features, float32(horizontal), float32(vertical))
			}
		}
	}
	return features
}

// encodeHOG computes a histogram-of-oriented-gradients descriptor over a
// 64x64 raster: 8x8 pixel cells, 9 unsigned orientation bins, L2-normalized
// over the whole descriptor.
func encodeHOG(gray [][]float64) []float32 {
	const (
		size     = 64
		cellSize = 8
		cells    = size / cellSize
		bins     = 9
	)

	hist := make([]float64, hogDim)
	for x := 1; x < size-1; x++ {
		for y := 1; y < size-1; y++ {
			gx := gray[x+1][y] - gray[x-1][y]
			gy := gray[x][y+1] - gray[x][y-1]
			magnitude := math.Hypot(gx, gy)
			if magnitude == 0 {
				continue
			}

			// Unsigned orientation in [0, pi).
			angle := math.Atan2(gy, gx)
			if angle < 0 {
				angle += math.Pi
			}
			bin := int(angle / math.Pi * bins)
			if bin >= bins {
				bin = bins - 1
			}

			cell := (y/cellSize)*cells + x/cellSize
			hist[cell*bins+bin] += magnitude
		}
	}

	var norm float64
	for _, v := range hist {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}

	out := make([]float32, hogDim)
	for i, v := range hist {
		out[i] = float32(v / norm)
	}
	return out
}

// encodeLBPH computes local binary pattern histograms over a 64x64 raster
// split into a 4x4 grid. Each cell contributes a 256-bin histogram normalized
// by the cell's pixel count, giving non-negative values suitable for the
// chi-squared metric.
func encodeLBPH(gray [][]float64) []float32 {
	const (
		size     = 64
		grid     = 4
		cellSize = size / grid
		bins     = 256
	)

	hist := make([]float64, lbphDim)
	counts := make([]float64, grid*grid)
	for x := 1; x < size-1; x++ {
		for y := 1; y < size-1; y++ {
			center := gray[x][y]

			var code int
			// Clockwise 8-neighborhood starting top-left.
			neighbors := [8][2]int{
				{x - 1, y - 1}, {x, y - 1}, {x + 1, y - 1}, {x + 1, y},
				{x + 1, y + 1}, {x, y + 1}, {x - 1, y + 1}, {x - 1, y},
			}
			for bit, n := range neighbors {
				if gray[n[0]][n[1]] >= center {
					code |= 1 << bit
				}
			}

			cell := (y/cellSize)*grid + x/cellSize
			hist[cell*bins+code]++
			counts[cell]++
		}
	}

	out := make([]float32, lbphDim)
	for cell := range grid * grid {
		if counts[cell] == 0 {
			continue
		}
		for b := range bins {
			out[cell*bins+b] = float32(hist[cell*bins+b] / counts[cell])
		}
	}
	return out
}

// encodeDCTProjection projects a 32x32 raster onto its low-frequency DCT
// coefficients in zigzag order, skipping the DC term. A fixed orthogonal
// basis stands in for a trained eigenface projection, which keeps the
// descriptor deterministic across deployments with no training artifacts.
func encodeDCTProjection(gray [][]float64, dim int) []float32 {
	size := len(gray)
	dct := computeDCT(gray)
	scale := float64(size * size)

	out := make([]float32, 0, dim)
	// Zigzag over anti-diagonals, low frequencies first.
	for d := 0; d <= 2*(size-1) && len(out) < dim; d++ {
		for u := 0; u <= d && len(out) < dim; u++ {
			v := d - u
			if u >= size || v >= size {
				continue
			}
			if u == 0 && v == 0 {
				continue // skip DC component
			}
			out = append(out, float32(dct[u][v]/scale))
		}
	}
	return out
}

// normalizeRaster returns a zero-mean, unit-variance copy of the raster.
func normalizeRaster(gray [][]float64) [][]float64 {
	var sum, count float64
	for x := range gray {
		for y := range gray[x] {
			sum += gray[x][y]
			count++
		}
	}
	mean := sum / count

	var variance float64
	for x := range gray {
		for y := range gray[x] {
			d := gray[x][y] - mean
			variance += d * d
		}
	}
	stddev := math.Sqrt(variance / count)
	if stddev == 0 {
		stddev = 1
	}

	out := make([][]float64, len(gray))
	for x := range gray {
		out[x] = make([]float64, len(gray[x]))
		for y := range gray[x] {
			out[x][y] = (gray[x][y] - mean) / stddev
		}
	}
	return out
}
