// Package phonetic resolves misheard application names. Speech-to-text
// frequently splits or misspells product names ("fire fox", "spottify"), so
// exact and substring lookups miss them.
//
// A [Matcher] is built once per set of names. Each name is reduced to its
// Double Metaphone codes; a query whose codes overlap a name's codes is a
// phonetic candidate and is ranked by Jaro-Winkler similarity. When nothing
// sounds alike, plain Jaro-Winkler similarity with a stricter threshold is
// used instead.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum similarity for a name that sounds
// like the query. Default 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum similarity for a name that does not
// sound like the query. Default 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Result is the outcome of a successful [Matcher.Match].
type Result struct {
	// Name is the matched name as it was passed to [New].
	Name string

	// Score is the Jaro-Winkler similarity in [0, 1].
	Score float64

	// Phonetic reports whether the name sounded like the query.
	Phonetic bool
}

type entry struct {
	name   string
	lower  string
	tokens []string
	codes  codeSet
}

// Matcher holds precomputed codes for a fixed list of names. It is read-only
// after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
	entries           []entry
}

// New builds a [Matcher] over names. Blank names are skipped.
func New(names []string, opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
		entries:           make([]entry, 0, len(names)),
	}
	for _, o := range opts {
		o(m)
	}
	for _, n := range names {
		lower := strings.ToLower(strings.TrimSpace(n))
		if lower == "" {
			continue
		}
		tokens := strings.Fields(lower)
		m.entries = append(m.entries, entry{name: n, lower: lower, tokens: tokens, codes: encode(tokens)})
	}
	return m
}

// Len returns the number of names the matcher knows.
func (m *Matcher) Len() int { return len(m.entries) }

// Match returns the known name most similar to query. A phonetic candidate
// always beats a name that only looks similar.
func (m *Matcher) Match(query string) (Result, bool) {
	lower := strings.ToLower(strings.TrimSpace(query))
	if lower == "" || len(m.entries) == 0 {
		return Result{}, false
	}
	tokens := strings.Fields(lower)
	codes := encode(tokens)

	var best Result
	for _, e := range m.entries {
		score := similarity(tokens, e.tokens, lower, e.lower)
		if codes.overlaps(e.codes) {
			if score >= m.phoneticThreshold && (!best.Phonetic || score > best.Score) {
				best = Result{Name: e.name, Score: score, Phonetic: true}
			}
			continue
		}
		if !best.Phonetic && score >= m.fuzzyThreshold && score > best.Score {
			best = Result{Name: e.name, Score: score}
		}
	}
	return best, best.Name != ""
}

type codeSet map[string]struct{}

// encode collects the primary and alternate Double Metaphone codes of every
// token. Tokens without consonants produce no code.
func encode(tokens []string) codeSet {
	codes := make(codeSet, len(tokens)*2)
	for _, t := range tokens {
		primary, alternate := matchr.DoubleMetaphone(t)
		if primary != "" {
			codes[primary] = struct{}{}
		}
		if alternate != "" {
			codes[alternate] = struct{}{}
		}
	}
	return codes
}

func (c codeSet) overlaps(other codeSet) bool {
	a, b := c, other
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// similarity is the best Jaro-Winkler score over the full strings, the
// strings with spaces removed, and every token pair.
func similarity(qTokens, nTokens []string, qFull, nFull string) float64 {
	score := matchr.JaroWinkler(qFull, nFull, false)
	if len(qTokens) > 1 || len(nTokens) > 1 {
		score = max(score, matchr.JaroWinkler(strings.Join(qTokens, ""), strings.Join(nTokens, ""), false))
	}
	for _, q := range qTokens {
		for _, n := range nTokens {
			score = max(score, matchr.JaroWinkler(q, n, false))
		}
	}
	return score
}
