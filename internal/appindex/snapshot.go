package appindex

import (
	"slices"
	"time"

	"github.com/sahilm/fuzzy"

	"github.com/MrWong99/jarvis/internal/phonetic"
)

// Match tells how [Snapshot.Lookup] found an entry.
type Match int

const (
	MatchNone Match = iota
	MatchExact
	MatchFuzzy
	MatchPhonetic
)

// String returns the lower-case name of the match type.
func (m Match) String() string {
	switch m {
	case MatchExact:
		return "exact"
	case MatchFuzzy:
		return "fuzzy"
	case MatchPhonetic:
		return "phonetic"
	default:
		return "none"
	}
}

// Shorter queries match too many names as subsequences.
const minFuzzyLen = 3

// Snapshot is an immutable name → entry mapping.
type Snapshot struct {
	entries map[string]Entry
	names   []string
	matcher *phonetic.Matcher
	builtAt time.Time
}

func newSnapshot(entries []Entry, builtAt time.Time) *Snapshot {
	s := &Snapshot{entries: make(map[string]Entry, len(entries)), builtAt: builtAt}
	for _, e := range entries {
		if e.Name == "" {
			continue
		}
		if _, dup := s.entries[e.Name]; dup {
			continue
		}
		s.entries[e.Name] = e
		s.names = append(s.names, e.Name)
	}
	slices.Sort(s.names)
	s.matcher = phonetic.New(s.names)
	return s
}

// NewSnapshot builds a snapshot from entries directly. The first entry for a
// name wins.
func NewSnapshot(entries []Entry) *Snapshot {
	return newSnapshot(entries, time.Now())
}

// Len returns the number of indexed applications.
func (s *Snapshot) Len() int { return len(s.names) }

// BuiltAt returns when the snapshot was created.
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }

// Names returns the indexed names in sorted order.
func (s *Snapshot) Names() []string { return slices.Clone(s.names) }

// Get returns the entry indexed exactly under name.
func (s *Snapshot) Get(name string) (Entry, bool) {
	e, ok := s.entries[normalize(name)]
	return e, ok
}

// Lookup resolves a spoken name: exact name first, then the best fuzzy
// (ordered subsequence) match, then the best phonetic match.
func (s *Snapshot) Lookup(name string) (Entry, Match) {
	key := normalize(name)
	if key == "" {
		return Entry{}, MatchNone
	}
	if e, ok := s.entries[key]; ok {
		return e, MatchExact
	}
	if len(key) >= minFuzzyLen {
		if matches := fuzzy.Find(key, s.names); len(matches) > 0 {
			return s.entries[matches[0].Str], MatchFuzzy
		}
	}
	if r, ok := s.matcher.Match(key); ok {
		return s.entries[r.Name], MatchPhonetic
	}
	return Entry{}, MatchNone
}
