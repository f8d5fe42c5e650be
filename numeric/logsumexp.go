// Package numeric provides the shift-by-max numerical primitives used
// throughout the filters to accumulate and normalize weights expressed in
// log space.
package numeric

import "math"

// LogSumExp computes log(sum(exp(logWeights))) using the shift-by-max
// trick: it factors out the largest summand before exponentiating the
// rest, so the result stays finite even when the log-weights themselves
// are very large or very negative. It returns math.Inf(-1) if logWeights
// is empty or every entry is -Inf.
func LogSumExp(logWeights []float64) float64 {
	if len(logWeights) == 0 {
		return math.Inf(-1)
	}

	max := logWeights[0]
	for _, lw := range logWeights[1:] {
		if lw > max {
			max = lw
		}
	}

	if math.IsInf(max, -1) {
		return math.Inf(-1)
	}

	sum := 0.0
	for _, lw := range logWeights {
		sum += math.Exp(lw - max)
	}

	return max + math.Log(sum)
}

// ShiftExp subtracts the maximum of logWeights from every entry and
// exponentiates the result, returning the (unnormalized) weights on the
// linear scale together with the max that was subtracted. This is the
// building block every resampler uses to turn log-weights into a
// categorical distribution without overflowing.
func ShiftExp(logWeights []float64) (weights []float64, max float64) {
	weights = make([]float64, len(logWeights))
	if len(logWeights) == 0 {
		return weights, math.Inf(-1)
	}

	max = logWeights[0]
	for _, lw := range logWeights[1:] {
		if lw > max {
			max = lw
		}
	}

	if math.IsInf(max, -1) {
		// every log-weight is -Inf: degrade to a uniform distribution
		// rather than propagate NaNs.
		u := 1.0 / float64(len(logWeights))
		for i := range weights {
			weights[i] = u
		}
		return weights, max
	}

	for i, lw := range logWeights {
		weights[i] = math.Exp(lw - max)
	}

	return weights, max
}

// Normalize scales w in place so its entries sum to 1. It is a no-op if
// the sum is zero.
func Normalize(w []float64) {
	sum := 0.0
	for _, v := range w {
		sum += v
	}
	if sum == 0 {
		return
	}
	for i := range w {
		w[i] /= sum
	}
}
