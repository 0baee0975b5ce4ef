package indicator

import "math"

// Alpha returns the smoothing factor for a span: 2/(span+1).
func Alpha(span int) float64 {
	return 2.0 / float64(span+1)
}

// EMA calculates an exponential moving average aligned to the input.
//
// The recursion is seeded with the first observed value rather than an
// SMA: ema[0] = x[0], ema[i] = alpha*x[i] + (1-alpha)*ema[i-1]. Leading NaNs
// stay NaN. A NaN after the first observation repeats the previous average,
// and the decay of the gap is applied when the next observation arrives.
func EMA(values []float64, span int) []float64 {
	out := make([]float64, len(values))
	if span <= 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}

	alpha := Alpha(span)
	decay := 1 - alpha
	avg := math.NaN()
	oldWeight := 1.0

	for i, x := range values {
		observed := !math.IsNaN(x)
		if !math.IsNaN(avg) {
			oldWeight *= decay
		}
		if observed {
			if math.IsNaN(avg) {
				avg = x
			} else {
				avg = (oldWeight*avg + alpha*x) / (oldWeight + alpha)
			}
			oldWeight = 1
		}
		out[i] = avg
	}

	return out
}

// RollingSum sums the trailing window of values. The first window-1 entries
// are NaN, as is any window containing a NaN.
func RollingSum(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	if window <= 0 || len(values) < window {
		return out
	}

	var sum float64
	nans := 0
	for i, x := range values {
		if math.IsNaN(x) {
			nans++
		} else {
			sum += x
		}
		if i >= window {
			old := values[i-window]
			if math.IsNaN(old) {
				nans--
			} else {
				sum -= old
			}
		}
		if i >= window-1 && nans == 0 {
			out[i] = sum
		}
	}

	return out
}

// Sub returns a-b element-wise; NaN propagates.
func Sub(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}
