// Package stats is the pure statistics kernel shared by the evaluation
// agents. All reducers operate on []float64, return 0 for empty input, and
// never fail; callers decide whether zero is meaningful.
package stats

import (
	"math"
	"sort"
)

// Percentile computes the nearest-rank percentile of xs. p is in [0,100].
// For n > 0: P(p) = sorted[clamp(ceil(p/100*n)-1, 0, n-1)].
func Percentile(xs []float64, p float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, xs)
	sort.Float64s(sorted)

	idx := int(math.Ceil(p/100*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

// Mean returns the arithmetic mean of xs.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Variance returns the population variance of xs.
func Variance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mu := Mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - mu
		sum += d * d
	}
	return sum / float64(len(xs))
}

// StdDev returns the population standard deviation of xs.
func StdDev(xs []float64) float64 {
	return math.Sqrt(Variance(xs))
}

// Min returns the smallest value in xs.
func Min(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

// Max returns the largest value in xs.
func Max(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

// sampleVariance returns the unbiased (n-1) variance used by the two-sample
// tests. Population variance is reserved for descriptive aggregates.
func sampleVariance(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	mu := Mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - mu
		sum += d * d
	}
	return sum / float64(n-1)
}

// TTestResult holds the outcome of a two-sample Welch's t-test.
type TTestResult struct {
	Statistic float64 `json:"statistic"`
	DF        float64 `json:"df"`
	PValue    float64 `json:"p_value"` // two-sided
}

// WelchT runs Welch's unequal-variance t-test on two samples. Degrees of
// freedom follow Welch–Satterthwaite. Samples smaller than 2 yield the zero
// result with PValue 1.
func WelchT(a, b []float64) TTestResult {
	n1, n2 := float64(len(a)), float64(len(b))
	if n1 < 2 || n2 < 2 {
		return TTestResult{PValue: 1}
	}
	v1, v2 := sampleVariance(a), sampleVariance(b)
	se2 := v1/n1 + v2/n2
	if se2 == 0 {
		return TTestResult{PValue: 1}
	}
	t := (Mean(a) - Mean(b)) / math.Sqrt(se2)

	df := se2 * se2 / (v1*v1/(n1*n1*(n1-1)) + v2*v2/(n2*n2*(n2-1)))
	p := 2 * (1 - tCDF(math.Abs(t), df))
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return TTestResult{Statistic: t, DF: df, PValue: p}
}

// CohenD computes the standardized effect size between two samples using the
// pooled standard deviation.
func CohenD(a, b []float64) float64 {
	n1, n2 := float64(len(a)), float64(len(b))
	if n1 < 2 || n2 < 2 {
		return 0
	}
	v1, v2 := sampleVariance(a), sampleVariance(b)
	pooled := math.Sqrt(((n1-1)*v1 + (n2-1)*v2) / (n1 + n2 - 2))
	if pooled == 0 {
		return 0
	}
	return (Mean(a) - Mean(b)) / pooled
}

// ConfidenceInterval returns the symmetric confidence interval around the
// mean of xs at the given level (e.g. 0.95). Uses the t quantile with n-1
// degrees of freedom. Samples smaller than 2 return (mean, mean).
func ConfidenceInterval(xs []float64, level float64) (lo, hi float64) {
	n := len(xs)
	mu := Mean(xs)
	if n < 2 {
		return mu, mu
	}
	if level <= 0 || level >= 1 {
		level = 0.95
	}
	se := math.Sqrt(sampleVariance(xs) / float64(n))
	t := tQuantile(1-(1-level)/2, float64(n-1))
	return mu - t*se, mu + t*se
}

// Histogram bins xs into the given number of equal-width buckets between
// min and max. Returns bucket upper edges and counts; empty input returns
// nil slices.
func Histogram(xs []float64, buckets int) (edges []float64, counts []int) {
	if len(xs) == 0 || buckets <= 0 {
		return nil, nil
	}
	lo, hi := Min(xs), Max(xs)
	if hi == lo {
		return []float64{hi}, []int{len(xs)}
	}
	width := (hi - lo) / float64(buckets)
	edges = make([]float64, buckets)
	counts = make([]int, buckets)
	for i := range edges {
		edges[i] = lo + width*float64(i+1)
	}
	for _, x := range xs {
		idx := int((x - lo) / width)
		if idx >= buckets {
			idx = buckets - 1
		}
		counts[idx]++
	}
	return edges, counts
}

// tCDF evaluates the cumulative distribution of Student's t with df degrees
// of freedom at t, via the regularized incomplete beta function.
func tCDF(t, df float64) float64 {
	if df <= 0 {
		return 0.5
	}
	x := df / (df + t*t)
	p := 0.5 * regIncBeta(df/2, 0.5, x)
	if t > 0 {
		return 1 - p
	}
	return p
}

// tQuantile inverts tCDF by bisection. p must be in (0,1).
func tQuantile(p, df float64) float64 {
	if p <= 0.5 {
		return -tQuantile(1-p, df)
	}
	lo, hi := 0.0, 1e6
	for i := 0; i < 200; i++ {
		mid := (lo + hi) / 2
		if tCDF(mid, df) < p {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}

// regIncBeta computes the regularized incomplete beta function I_x(a, b)
// using the continued fraction expansion (Numerical Recipes form).
func regIncBeta(a, b, x float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}
	// Use the symmetry relation for faster convergence.
	if x > (a+1)/(a+b+2) {
		return 1 - regIncBeta(b, a, 1-x)
	}
	lbeta := lgamma(a+b) - lgamma(a) - lgamma(b)
	front := math.Exp(lbeta + a*math.Log(x) + b*math.Log(1-x))

	const maxIter = 300
	const eps = 1e-12
	f, c, d := 1.0, 1.0, 0.0
	for i := 0; i <= maxIter; i++ {
		m := i / 2
		var numerator float64
		switch {
		case i == 0:
			numerator = 1
		case i%2 == 0:
			numerator = float64(m) * (b - float64(m)) * x / ((a + 2*float64(m) - 1) * (a + 2*float64(m)))
		default:
			numerator = -(a + float64(m)) * (a + b + float64(m)) * x / ((a + 2*float64(m)) * (a + 2*float64(m) + 1))
		}

		d = 1 + numerator*d
		if math.Abs(d) < 1e-30 {
			d = 1e-30
		}
		d = 1 / d
		c = 1 + numerator/c
		if math.Abs(c) < 1e-30 {
			c = 1e-30
		}
		f *= c * d
		if math.Abs(1-c*d) < eps {
			break
		}
	}
	return front * (f - 1) / a
}

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}
