package models

// AICc is the small-sample corrected Akaike information criterion for a
// model with log-likelihood logL, k parameters and n observations:
//
//	AIC  = −2·logL + 2k
//	AICc = AIC + 2k(k+1) / max(n−k−1, 1)
//
// The denominator is clamped to 1 so the score stays finite for very short
// series; approx reports that the clamp was applied. Only direct calls can
// hit the clamp: Fit never returns a model with n <= k+1. Lower is better.
func AICc(logL float64, k, n int) (value float64, approx bool) {
	aic := -2*logL + 2*float64(k)
	den := n - k - 1
	if den <= 0 {
		den = 1
		approx = true
	}
	return aic + 2*float64(k)*float64(k+1)/float64(den), approx
}
