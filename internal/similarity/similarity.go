// Package similarity implements the text comparison primitives used by the
// consistency, sensitivity, hallucination, and golden-dataset agents: exact
// match, normalized Levenshtein, token Jaccard, character n-gram Jaccard,
// keyword overlap, and the contradiction heuristic.
package similarity

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Options controls input normalization. The zero value lowercases, applies
// NFC, and collapses whitespace runs, matching the agents' defaults.
type Options struct {
	CaseSensitive  bool
	TrimWhitespace bool // collapse runs of whitespace to a single space
}

// DefaultOptions matches the agents' defaults: case-insensitive with
// whitespace collapsing.
func DefaultOptions() Options {
	return Options{TrimWhitespace: true}
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Normalize applies NFC plus the configured case and whitespace handling.
func (o Options) Normalize(s string) string {
	s = norm.NFC.String(s)
	if !o.CaseSensitive {
		s = strings.ToLower(s)
	}
	if o.TrimWhitespace {
		s = whitespaceRun.ReplaceAllString(strings.TrimSpace(s), " ")
	}
	return s
}

// ExactMatch returns 1.0 iff the strings are equal after normalization.
func ExactMatch(a, b string, o Options) float64 {
	if o.Normalize(a) == o.Normalize(b) {
		return 1.0
	}
	return 0.0
}

// Levenshtein returns 1 - distance/max(len) over normalized runes.
// Two empty strings are identical (1.0).
func Levenshtein(a, b string, o Options) float64 {
	ra := []rune(o.Normalize(a))
	rb := []rune(o.Normalize(b))
	if len(ra) == 0 && len(rb) == 0 {
		return 1.0
	}
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	return 1 - float64(editDistance(ra, rb))/float64(maxLen)
}

// editDistance computes the Levenshtein distance with a two-row table.
func editDistance(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

var wordRun = regexp.MustCompile(`\w+`)

// Tokens extracts maximal runs of word characters of length >= 3 from the
// normalized string.
func Tokens(s string, o Options) []string {
	var out []string
	for _, w := range wordRun.FindAllString(o.Normalize(s), -1) {
		if len(w) >= 3 {
			out = append(out, w)
		}
	}
	return out
}

// JaccardTokens computes |A∩B| / |A∪B| over token sets. Both empty yields
// 1.0; exactly one empty yields 0.0.
func JaccardTokens(a, b string, o Options) float64 {
	return jaccard(tokenSet(Tokens(a, o)), tokenSet(Tokens(b, o)))
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// ngramWeights maps n-gram sizes to their contribution in NGram.
var ngramWeights = map[int]float64{2: 0.2, 3: 0.3, 4: 0.3, 5: 0.2}

// NGram computes a weighted Jaccard over character n-grams for
// n in {2,3,4,5}, clamped to [0,1].
func NGram(a, b string, o Options) float64 {
	na := o.Normalize(a)
	nb := o.Normalize(b)
	var score float64
	for n, w := range ngramWeights {
		score += w * jaccard(ngrams(na, n), ngrams(nb, n))
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func ngrams(s string, n int) map[string]struct{} {
	runes := []rune(s)
	set := make(map[string]struct{})
	for i := 0; i+n <= len(runes); i++ {
		set[string(runes[i:i+n])] = struct{}{}
	}
	return set
}

// stopwords is the small exclusion set used by KeywordOverlap.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "her": {}, "was": {}, "one": {},
	"our": {}, "out": {}, "his": {}, "has": {}, "had": {}, "have": {},
	"this": {}, "that": {}, "with": {}, "they": {}, "from": {}, "been": {},
	"were": {}, "will": {}, "would": {}, "there": {}, "their": {},
	"what": {}, "which": {}, "when": {}, "where": {},
}

// KeywordOverlap computes Jaccard over stopword-filtered tokens.
func KeywordOverlap(a, b string, o Options) float64 {
	return jaccard(keywordSet(a, o), keywordSet(b, o))
}

func keywordSet(s string, o Options) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range Tokens(s, o) {
		if _, stop := stopwords[t]; !stop {
			set[t] = struct{}{}
		}
	}
	return set
}

// negationCues are the markers the contradiction heuristic looks for.
var negationCues = []string{
	"not", "never", "no", "cannot", "can't", "won't", "isn't", "aren't",
	"wasn't", "weren't", "doesn't", "don't", "didn't", "none", "neither",
	"nor", "without",
}

// hasNegation reports whether the normalized text contains a negation cue as
// a whole token.
func hasNegation(s string, o Options) bool {
	for _, w := range wordRun.FindAllString(o.Normalize(s), -1) {
		for _, cue := range negationCues {
			if w == cue {
				return true
			}
		}
	}
	return false
}

// Contradiction fires when exactly one of the two texts contains a negation
// cue and their n-gram similarity is at least 0.3. This is a low-precision
// signal; callers downgrade severity when it is the only evidence.
func Contradiction(a, b string, o Options) bool {
	na, nb := hasNegation(a, o), hasNegation(b, o)
	if na == nb {
		return false
	}
	return NGram(a, b, o) >= 0.3
}
