// Package phonetic maps free-typed clinical terms onto the vocabulary.
//
// A name typed by a clinician ("amoxicilin", "ibuprofin") is compared against
// a list of known terms. Double Metaphone codes pick phonetic candidates and
// Jaro-Winkler similarity ranks them. When no phonetic candidate clears the
// threshold, a stricter pure-similarity pass runs over the whole list.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.90
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a term whose
// phonetic code overlaps the input. Default: 0.80.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score used when no
// phonetic candidate exists. Default: 0.90.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Matcher configured with opts.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Canonicalize returns the vocabulary term that name most plausibly refers
// to. An exact (case-insensitive) hit wins outright with score 1. When nothing
// clears the thresholds, the trimmed input is returned with matched false.
func (m *Matcher) Canonicalize(name string, terms []string) (canonical string, score float64, matched bool) {
	in := strings.ToLower(strings.TrimSpace(name))
	if in == "" || len(terms) == 0 {
		return strings.TrimSpace(name), 0, false
	}
	inKey := squash(in)
	inCodes := codes(inKey)

	var (
		best      string
		bestScore float64
		phonetic  bool
	)
	for _, term := range terms {
		t := strings.ToLower(strings.TrimSpace(term))
		if t == "" {
			continue
		}
		if t == in {
			return term, 1, true
		}
		key := squash(t)
		jw := matchr.JaroWinkler(inKey, key, false)

		if overlap(inCodes, codes(key)) {
			if jw >= m.phoneticThreshold && (!phonetic || jw > bestScore) {
				best, bestScore, phonetic = term, jw, true
			}
			continue
		}
		if !phonetic && jw >= m.fuzzyThreshold && jw > bestScore {
			best, bestScore = term, jw
		}
	}
	if best == "" {
		return strings.TrimSpace(name), 0, false
	}
	return best, bestScore, true
}

// squash removes whitespace and hyphens so "x ray" and "x-ray" compare equal.
func squash(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-':
			return -1
		}
		return r
	}, s)
}

func codes(s string) [2]string {
	p, sec := matchr.DoubleMetaphone(s)
	return [2]string{p, sec}
}

func overlap(a, b [2]string) bool {
	for _, x := range a {
		if x == "" {
			continue
		}
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
