package similarity

import "fmt"

// Method names a comparison primitive selectable by callers.
type Method string

const (
	MethodExact          Method = "exact_match"
	MethodLevenshtein    Method = "levenshtein"
	MethodTokenJaccard   Method = "token_jaccard"
	MethodNGram          Method = "ngram"
	MethodKeywordOverlap Method = "keyword_overlap"
)

// ParseMethod validates a caller-supplied method name. Empty selects
// levenshtein.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodExact, MethodLevenshtein, MethodTokenJaccard, MethodNGram, MethodKeywordOverlap:
		return Method(s), nil
	case "":
		return MethodLevenshtein, nil
	}
	return "", fmt.Errorf("unknown similarity method %q", s)
}

// Score compares two strings under the given method.
func Score(m Method, a, b string, o Options) float64 {
	switch m {
	case MethodExact:
		return ExactMatch(a, b, o)
	case MethodTokenJaccard:
		return JaccardTokens(a, b, o)
	case MethodNGram:
		return NGram(a, b, o)
	case MethodKeywordOverlap:
		return KeywordOverlap(a, b, o)
	default:
		return Levenshtein(a, b, o)
	}
}

// MeanPairwise averages Score over every unordered pair. Fewer than two
// inputs compare trivially equal.
func MeanPairwise(texts []string, m Method, o Options) float64 {
	if len(texts) < 2 {
		return 1.0
	}
	var sum float64
	pairs := 0
	for i := 0; i < len(texts); i++ {
		for j := i + 1; j < len(texts); j++ {
			sum += Score(m, texts[i], texts[j], o)
			pairs++
		}
	}
	return sum / float64(pairs)
}

// Consensus averages each text's best agreement with any other text. A group
// of n identical outputs scores 1; one outlier among n lowers the score by
// roughly 1/n rather than collapsing it the way a pairwise mean does.
func Consensus(texts []string, m Method, o Options) float64 {
	if len(texts) < 2 {
		return 1.0
	}
	var sum float64
	for i := range texts {
		best := 0.0
		for j := range texts {
			if i == j {
				continue
			}
			if s := Score(m, texts[i], texts[j], o); s > best {
				best = s
			}
		}
		sum += best
	}
	return sum / float64(len(texts))
}
