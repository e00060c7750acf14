package feature

import "math"

// SMA over the last `p` closes; aligned to input length with NaNs for
// warmup.
func SMA(x []float64, p int) []float64 {
	if p <= 0 {
		return nil
	}
	out := make([]float64, len(x))
	var sum float64
	for i := range x {
		sum += x[i]
		if i < p-1 {
			out[i] = math.NaN()
			continue
		}
		if i >= p {
			sum -= x[i-p]
		}
		out[i] = sum / float64(p)
	}
	return out
}

// EMA with standard smoothing 2/(p+1), seeded with SMA(p); NaNs for
// warmup.
func EMA(x []float64, p int) []float64 {
	if p <= 0 {
		return nil
	}
	out := make([]float64, len(x))
	if len(x) < p {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}

	k := 2.0 / float64(p+1)
	var seed float64
	for i := 0; i < p; i++ {
		seed += x[i]
	}
	seed /= float64(p)
	for i := 0; i < p-1; i++ {
		out[i] = math.NaN()
	}
	out[p-1] = seed
	for i := p; i < len(x); i++ {
		out[i] = (x[i]-out[i-1])*k + out[i-1]
	}
	return out
}

// Momentum is x[i] - x[i-p]; NaNs for warmup.
func Momentum(x []float64, p int) []float64 {
	if p <= 0 {
		return nil
	}
	out := make([]float64, len(x))
	for i := range x {
		if i < p {
			out[i] = math.NaN()
			continue
		}
		out[i] = x[i] - x[i-p]
	}
	return out
}

// RollingVol is the rolling population standard deviation of simple
// returns over window p; NaNs for warmup.
func RollingVol(x []float64, p int) []float64 {
	out := make([]float64, len(x))
	if p <= 1 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}

	returns := make([]float64, len(x))
	returns[0] = math.NaN()
	for i := 1; i < len(x); i++ {
		if x[i-1] == 0 {
			returns[i] = math.NaN()
			continue
		}
		returns[i] = x[i]/x[i-1] - 1
	}

	for i := range x {
		if i < p {
			out[i] = math.NaN()
			continue
		}
		var mean float64
		for j := i - p + 1; j <= i; j++ {
			mean += returns[j]
		}
		mean /= float64(p)
		var variance float64
		for j := i - p + 1; j <= i; j++ {
			d := returns[j] - mean
			variance += d * d
		}
		out[i] = math.Sqrt(variance / float64(p))
	}
	return out
}
