// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package decision maps statistical results to a hypothesis verdict and
// computes the supporting interval estimates. Everything here is pure
// arithmetic: the same numeric inputs always produce the same verdict.
package decision

import (
	"fmt"
	"math"

	"github.com/pdiddy/research-pilot/pkg/types"
)

// Significance bands for the verdict table.
const (
	significanceLevel = 0.05
	marginalLevel     = 0.10
)

// Decide maps a p-value and effect size to a verdict, evaluated in fixed
// priority order:
//
//  1. p < 0.05 and |effect| >= minEffect  -> ACCEPT_STRONG
//  2. p < 0.05 and |effect| <  minEffect  -> ACCEPT_WEAK
//  3. 0.05 <= p < 0.10                    -> INCONCLUSIVE
//  4. p >= 0.10                           -> REJECT
//
// Each band is closed on its lower bound and open on its upper bound, so
// p exactly 0.05 is INCONCLUSIVE and p exactly 0.10 is REJECT.
func Decide(pValue, effectSize, minEffect float64) types.Verdict {
	switch {
	case pValue < significanceLevel && math.Abs(effectSize) >= minEffect:
		return types.VerdictAcceptStrong
	case pValue < significanceLevel:
		return types.VerdictAcceptWeak
	case pValue < marginalLevel:
		return types.VerdictInconclusive
	default:
		return types.VerdictReject
	}
}

// PValue computes the two-sided p-value for the observed standardized
// effect under a normal null, z = effect * sqrt(n).
func PValue(effectSize float64, sampleSize int) float64 {
	if sampleSize <= 0 {
		return 1.0
	}
	z := math.Abs(effectSize) * math.Sqrt(float64(sampleSize))
	return 2 * (1 - normalCDF(z))
}

// Interval computes a normal confidence interval for the effect estimate
// from the run's sample statistics. The level is a configuration input,
// not a hard-coded constant.
func Interval(effect, stdDev float64, sampleSize int, level float64) (types.ConfidenceInterval, error) {
	if level <= 0 || level >= 1 {
		return types.ConfidenceInterval{}, fmt.Errorf("confidence level must be in (0,1), got %.3f", level)
	}
	if sampleSize <= 0 {
		return types.ConfidenceInterval{}, fmt.Errorf("sample size must be positive, got %d", sampleSize)
	}
	if stdDev < 0 {
		return types.ConfidenceInterval{}, fmt.Errorf("standard deviation must not be negative, got %.4f", stdDev)
	}

	z := normalQuantile(1 - (1-level)/2)
	half := z * stdDev / math.Sqrt(float64(sampleSize))
	return types.ConfidenceInterval{
		Lower: effect - half,
		Upper: effect + half,
		Level: level,
	}, nil
}

// normalCDF is the standard normal cumulative distribution function.
func normalCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// normalQuantile is the inverse of normalCDF, computed with Acklam's
// rational approximation (relative error below 1.15e-9 across (0,1)).
func normalQuantile(p float64) float64 {
	if p <= 0 {
		return math.Inf(-1)
	}
	if p >= 1 {
		return math.Inf(1)
	}

	a := [6]float64{-3.969683028665376e+01, 2.209460984245205e+02, -2.759285104469687e+02,
		1.383577518672690e+02, -3.066479806614716e+01, 2.506628277459239e+00}
	b := [5]float64{-5.447609879822406e+01, 1.615858368580409e+02, -1.556989798598866e+02,
		6.680131188771972e+01, -1.328068155288572e+01}
	c := [6]float64{-7.784894002430293e-03, -3.223964580411365e-01, -2.400758277161838e+00,
		-2.549732539343734e+00, 4.374664141464968e+00, 2.938163982698783e+00}
	d := [4]float64{7.784695709041462e-03, 3.224671290700398e-01, 2.445134137142996e+00,
		3.754408661907416e+00}

	const pLow = 0.02425
	const pHigh = 1 - pLow

	switch {
	case p < pLow:
		q := math.Sqrt(-2 * math.Log(p))
		return (((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	case p <= pHigh:
		q := p - 0.5
		r := q * q
		return (((((a[0]*r+a[1])*r+a[2])*r+a[3])*r+a[4])*r + a[5]) * q /
			(((((b[0]*r+b[1])*r+b[2])*r+b[3])*r+b[4])*r + 1)
	default:
		q := math.Sqrt(-2 * math.Log(1-p))
		return -(((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	}
}
