package stats

import (
	"math"
	"sort"
)

// UTestResult holds the outcome of a two-sample Mann–Whitney U test.
type UTestResult struct {
	U      float64 `json:"u"`
	PValue float64 `json:"p_value"` // two-sided
	Exact  bool    `json:"exact"`   // true when the exact distribution was used
}

// MannWhitneyU runs the two-sided Mann–Whitney U test. When min(n1,n2) >= 8
// the normal approximation with continuity correction is used; smaller
// samples use the exact U distribution. Empty samples yield PValue 1.
func MannWhitneyU(a, b []float64) UTestResult {
	n1, n2 := len(a), len(b)
	if n1 == 0 || n2 == 0 {
		return UTestResult{PValue: 1}
	}

	u1 := uStatistic(a, b)
	u2 := float64(n1*n2) - u1
	u := math.Min(u1, u2)

	if minInt(n1, n2) >= 8 {
		mu := float64(n1*n2) / 2
		sigma := math.Sqrt(float64(n1*n2*(n1+n2+1)) / 12)
		if sigma == 0 {
			return UTestResult{U: u, PValue: 1}
		}
		z := (math.Abs(u-mu) - 0.5) / sigma
		if z < 0 {
			z = 0
		}
		p := 2 * (1 - normCDF(z))
		if p > 1 {
			p = 1
		}
		return UTestResult{U: u, PValue: p}
	}

	p := exactUPValue(int(u), n1, n2)
	return UTestResult{U: u, PValue: p, Exact: true}
}

// uStatistic computes U for sample a against b via midranks.
func uStatistic(a, b []float64) float64 {
	type obs struct {
		v     float64
		fromA bool
	}
	all := make([]obs, 0, len(a)+len(b))
	for _, v := range a {
		all = append(all, obs{v, true})
	}
	for _, v := range b {
		all = append(all, obs{v, false})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].v < all[j].v })

	// Midranks for ties; ranks are 1-based.
	ranks := make([]float64, len(all))
	for i := 0; i < len(all); {
		j := i
		for j < len(all) && all[j].v == all[i].v {
			j++
		}
		mid := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			ranks[k] = mid
		}
		i = j
	}

	var r1 float64
	for i, o := range all {
		if o.fromA {
			r1 += ranks[i]
		}
	}
	n1 := float64(len(a))
	return r1 - n1*(n1+1)/2
}

// exactUPValue computes the exact two-sided p-value 2 * P(U <= u) from the
// null distribution of U.
func exactUPValue(u, n1, n2 int) float64 {
	total := n1 * n2
	counts := uDistribution(n1, n2)

	var cum float64
	for i := 0; i <= u && i <= total; i++ {
		cum += counts[i]
	}
	var all float64
	for _, c := range counts {
		all += c
	}
	if all == 0 {
		return 1
	}
	p := 2 * cum / all
	if p > 1 {
		p = 1
	}
	return p
}

// uDistribution returns the frequency of each U value under the null
// hypothesis for sample sizes n1, n2. Built incrementally: each element of
// the first sample contributes 0..n2 to U, so the distribution is the
// n1-fold windowed convolution computed with running prefix sums.
func uDistribution(n1, n2 int) []float64 {
	maxU := n1 * n2
	prev := make([]float64, maxU+1)
	prev[0] = 1
	for i := 1; i <= n1; i++ {
		next := make([]float64, maxU+1)
		for u := 0; u <= maxU; u++ {
			next[u] = prev[u]
			if u >= 1 {
				next[u] += next[u-1]
			}
			if u >= n2+1 {
				next[u] -= prev[u-n2-1]
			}
		}
		prev = next
	}
	return prev
}

// normCDF is the standard normal cumulative distribution function.
func normCDF(z float64) float64 {
	return 0.5 * math.Erfc(-z/math.Sqrt2)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
