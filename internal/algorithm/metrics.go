package algorithm

import "math"

// Distance metrics and their confidence normalizations. One fixed, documented
// mapping per metric:
//
//	euclidean, chi-squared: confidence = 1 / (1 + distance)
//	cosine:                 confidence = 1 - distance/2
//
// All mappings are monotone decreasing in distance with range (0, 1], so a
// distance of zero always yields confidence 1.

// euclideanDistance computes the L2 distance between two vectors.
func euclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// cosineDistance computes the cosine distance between two vectors.
// Returns a value between 0 (identical direction) and 2 (opposite).
// A zero vector has no direction and gets the maximum distance.
func cosineDistance(a, b []float32) float64 {
	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 2.0
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] to handle floating point errors.
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}

	return 1 - similarity
}

// chiSquaredDistance computes the chi-squared histogram distance
// sum((a-b)^2 / (a+b)) over bins where a+b > 0. Both inputs are expected to
// be non-negative histograms; identical histograms yield 0.
func chiSquaredDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		denom := av + bv
		if denom <= 0 {
			continue
		}
		d := av - bv
		sum += d * d / denom
	}
	return sum
}

// inverseConfidence maps an unbounded non-negative distance to (0, 1].
func inverseConfidence(distance float64) float64 {
	if distance < 0 {
		distance = 0
	}
	return 1 / (1 + distance)
}

// cosineConfidence maps a cosine distance in [0, 2] to [0, 1].
func cosineConfidence(distance float64) float64 {
	if distance < 0 {
		distance = 0
	}
	if distance > 2 {
		distance = 2
	}
	return 1 - distance/2
}
