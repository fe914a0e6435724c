// Package stats holds the hypothesis-testing math used to judge pricing experiments.
package stats

import "math"

// Abramowitz and Stegun 7.1.26 coefficients
const (
	asA1 = 0.254829592
	asA2 = -0.284496736
	asA3 = 1.421413741
	asA4 = -1.453152027
	asA5 = 1.061405429
	asP  = 0.3275911

	// two-tailed 95% critical value used by the power estimate
	powerCriticalZ = 1.96
)

// Sample is one arm of an experiment
type Sample struct {
	Impressions int64
	Conversions int64
}

// ConversionRate returns conversions per impression, 0 for an empty arm
func (s Sample) ConversionRate() float64 {
	if s.Impressions <= 0 {
		return 0
	}
	return float64(s.Conversions) / float64(s.Impressions)
}

// ZTestResult is the outcome of a two-proportion z-test
type ZTestResult struct {
	PValue        float64 `json:"p_value"`
	IsSignificant bool    `json:"is_significant"`
	ZScore        float64 `json:"z_score"`
}

// degenerate is returned when the test has nothing to compare
var degenerate = ZTestResult{PValue: 1, IsSignificant: false, ZScore: 0}

// NormalCDF approximates the standard normal cumulative distribution
func NormalCDF(x float64) float64 {
	if x < -8 {
		return 0
	}
	if x > 8 {
		return 1
	}

	sign := 1.0
	if x < 0 {
		sign = -1
	}
	z := math.Abs(x) / math.Sqrt2

	t := 1 / (1 + asP*z)
	erf := 1 - ((((asA5*t+asA4)*t+asA3)*t+asA2)*t+asA1)*t*math.Exp(-z*z)

	return 0.5 * (1 + sign*erf)
}

// TwoProportionZTest compares treatment conversion against control with a pooled proportion.
// Empty arms and pooled rates of 0 or 1 yield pValue 1 rather than an error.
func TwoProportionZTest(control, treatment Sample, confidenceLevel float64) ZTestResult {
	if control.Impressions <= 0 || treatment.Impressions <= 0 {
		return degenerate
	}

	n1 := float64(control.Impressions)
	n2 := float64(treatment.Impressions)
	p1 := control.ConversionRate()
	p2 := treatment.ConversionRate()

	pooled := (p1*n1 + p2*n2) / (n1 + n2)
	if pooled <= 0 || pooled >= 1 {
		return degenerate
	}

	se := math.Sqrt(pooled * (1 - pooled) * (1/n1 + 1/n2))
	if se == 0 {
		return degenerate
	}

	z := (p2 - p1) / se
	pValue := 2 * (1 - NormalCDF(math.Abs(z)))

	return ZTestResult{
		PValue:        pValue,
		IsSignificant: pValue < 1-confidenceLevel,
		ZScore:        z,
	}
}

// EstimatePower approximates the probability of detecting the observed
// effect with totalSamples split evenly across both arms.
func EstimatePower(p1, p2 float64, totalSamples int64) float64 {
	if p1 == p2 || totalSamples <= 0 {
		return 0
	}

	mean := (p1 + p2) / 2
	if mean <= 0 || mean >= 1 {
		return 0
	}

	effect := math.Abs(p2-p1) / math.Sqrt(mean*(1-mean))
	zBeta := effect*math.Sqrt(float64(totalSamples)/2) - powerCriticalZ

	return Clamp(NormalCDF(zBeta), 0, 1)
}

// RelativeLift is (treatment - control) / control, 0 when control is 0
func RelativeLift(control, treatment float64) float64 {
	if control == 0 {
		return 0
	}
	return (treatment - control) / control
}

// Clamp bounds v to [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
