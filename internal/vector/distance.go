package vector

import "math"

// CosineDistance matches pgvector's <=> operator. A zero vector is at distance 1 from everything.
func CosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// L2Distance matches pgvector's <-> operator.
func L2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func Distance(metric Metric, a, b []float32) float64 {
	if metric == MetricL2 {
		return L2Distance(a, b)
	}
	return CosineDistance(a, b)
}
