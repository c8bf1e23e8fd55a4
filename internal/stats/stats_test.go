package stats

import (
	"math"
	"testing"
)

func almost(a, b, eps float64) bool { return math.Abs(a-b) <= eps }

func TestPercentileNearestRank(t *testing.T) {
	xs := []float64{100, 120, 110}
	if got := Percentile(xs, 50); got != 110 {
		t.Fatalf("p50: got %g", got)
	}
	if got := Percentile(xs, 99); got != 120 {
		t.Fatalf("p99: got %g", got)
	}
	if got := Percentile(nil, 50); got != 0 {
		t.Fatalf("empty: got %g", got)
	}
	if got := Percentile([]float64{42}, 95); got != 42 {
		t.Fatalf("single: got %g", got)
	}
}

func TestPercentileOrderingInvariant(t *testing.T) {
	xs := []float64{5, 9, 1, 7, 3, 8, 2, 6, 4, 10}
	p50, p95, p99 := Percentile(xs, 50), Percentile(xs, 95), Percentile(xs, 99)
	if !(Min(xs) <= p50 && p50 <= p95 && p95 <= p99 && p99 <= Max(xs)) {
		t.Fatalf("percentile ordering violated: %g %g %g", p50, p95, p99)
	}
}

func TestMeanVarianceStdDev(t *testing.T) {
	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	if got := Mean(xs); got != 5 {
		t.Fatalf("mean: got %g", got)
	}
	if got := Variance(xs); got != 4 {
		t.Fatalf("population variance: got %g", got)
	}
	if got := StdDev(xs); got != 2 {
		t.Fatalf("stddev: got %g", got)
	}
	if Mean(nil) != 0 || StdDev(nil) != 0 {
		t.Fatal("empty input should yield 0")
	}
}

func TestMinMax(t *testing.T) {
	xs := []float64{3, -1, 7, 0}
	if Min(xs) != -1 || Max(xs) != 7 {
		t.Fatalf("min/max: got %g/%g", Min(xs), Max(xs))
	}
}

func TestWelchTDistinguishesShiftedSamples(t *testing.T) {
	a := []float64{100, 102, 98, 101, 99, 100, 103, 97}
	b := []float64{150, 152, 148, 151, 149, 150, 153, 147}
	res := WelchT(a, b)
	if res.PValue > 0.001 {
		t.Fatalf("clearly shifted samples should be significant, p=%g", res.PValue)
	}
	if res.Statistic >= 0 {
		t.Fatalf("a < b should give negative statistic, got %g", res.Statistic)
	}
}

func TestWelchTIdenticalSamples(t *testing.T) {
	a := []float64{5, 6, 7, 8}
	res := WelchT(a, a)
	if res.PValue < 0.99 {
		t.Fatalf("identical samples should not be significant, p=%g", res.PValue)
	}
}

func TestWelchTSmallSamples(t *testing.T) {
	res := WelchT([]float64{1}, []float64{2, 3})
	if res.PValue != 1 {
		t.Fatalf("undersized samples should yield p=1, got %g", res.PValue)
	}
}

func TestCohenD(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5}
	b := []float64{3, 4, 5, 6, 7}
	d := CohenD(a, b)
	// Shift of 2 with pooled sd sqrt(2.5).
	want := -2 / math.Sqrt(2.5)
	if !almost(d, want, 1e-9) {
		t.Fatalf("cohen's d: got %g, want %g", d, want)
	}
	if CohenD(a, a) != 0 {
		t.Fatal("identical samples should have zero effect size")
	}
}

func TestConfidenceIntervalCoversMean(t *testing.T) {
	xs := []float64{10, 12, 11, 13, 9, 10, 11, 12}
	lo, hi := ConfidenceInterval(xs, 0.95)
	mu := Mean(xs)
	if !(lo < mu && mu < hi) {
		t.Fatalf("interval [%g, %g] should bracket mean %g", lo, hi, mu)
	}
	lo99, hi99 := ConfidenceInterval(xs, 0.99)
	if hi99-lo99 <= hi-lo {
		t.Fatal("99% interval should be wider than 95%")
	}
}

func TestHistogram(t *testing.T) {
	edges, counts := Histogram([]float64{1, 2, 3, 4, 5, 6, 7, 8}, 4)
	if len(edges) != 4 || len(counts) != 4 {
		t.Fatalf("expected 4 buckets, got %d/%d", len(edges), len(counts))
	}
	total := 0
	for _, c := range counts {
		total += c
	}
	if total != 8 {
		t.Fatalf("counts should cover every sample, got %d", total)
	}
}

func TestMannWhitneyUExactSmallSamples(t *testing.T) {
	a := []float64{1, 2, 3}
	b := []float64{10, 11, 12}
	res := MannWhitneyU(a, b)
	if !res.Exact {
		t.Fatal("small samples should use the exact distribution")
	}
	if res.U != 0 {
		t.Fatalf("fully separated samples should give U=0, got %g", res.U)
	}
	// 2 * 1/C(6,3) = 2/20.
	if !almost(res.PValue, 0.1, 1e-9) {
		t.Fatalf("exact p: got %g, want 0.1", res.PValue)
	}
}

func TestMannWhitneyUNormalApproxLargeSamples(t *testing.T) {
	var a, b []float64
	for i := 0; i < 12; i++ {
		a = append(a, float64(i))
		b = append(b, float64(i)+20)
	}
	res := MannWhitneyU(a, b)
	if res.Exact {
		t.Fatal("large samples should use the normal approximation")
	}
	if res.PValue > 0.001 {
		t.Fatalf("separated samples should be significant, p=%g", res.PValue)
	}
}

func TestMannWhitneyUIdentical(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}
	res := MannWhitneyU(a, a)
	if res.PValue < 0.9 {
		t.Fatalf("identical samples should not be significant, p=%g", res.PValue)
	}
}
