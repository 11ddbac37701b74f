// Package morphology expands Russian search keywords into morphological
// variants and scores result relevance against them. Pure, no I/O.
//
// No morphological analyzer library (the Go ecosystem has no equivalent of
// pymorphy2) is available anywhere in the reference corpus, so this engine
// uses a small suffix-substitution table covering the common noun/adjective
// case endings. The last noun rule has an empty suffix, so a word that
// matches no other rule still gets forms built by appending "а", "ов" and "е".
package morphology

import (
	"sort"
	"strings"
	"unicode"
)

const (
	maxVariantsPerWord = 10
	maxExpandedQueries  = 15
	minTokenLen         = 2
)

// Engine expands queries and tests relevance. Stateless and safe for
// concurrent use.
type Engine struct{}

// NewEngine constructs a morphology Engine.
func NewEngine() *Engine { return &Engine{} }

// Analysis mirrors types.MorphologyAnalysis; kept local to avoid an import
// cycle and converted at the call site.
type Analysis struct {
	Original        string
	NormalizedWords []string
	Variants        map[string][]string
	ExpandedQueries []string
}

// Expand implements §4.2's expand(query) -> MorphologyAnalysis.
func (e *Engine) Expand(query string) Analysis {
	original := strings.TrimSpace(query)
	tokens := tokenize(original)

	variants := make(map[string][]string, len(tokens))
	for _, tok := range tokens {
		variants[tok] = wordForms(tok)
	}

	return Analysis{
		Original:        original,
		NormalizedWords: tokens,
		Variants:        variants,
		ExpandedQueries: expandedQueries(original, tokens, variants),
	}
}

// IsRelevant implements §4.2's is_relevant(text, original_query) -> bool.
// Case-folds text and returns true iff any variant of any kept token of
// original_query appears as a substring.
func (e *Engine) IsRelevant(text, originalQuery string) bool {
	folded := strings.ToLower(text)
	tokens := tokenize(originalQuery)
	if len(tokens) == 0 {
		return true
	}
	for _, tok := range tokens {
		for _, v := range wordForms(tok) {
			if strings.Contains(folded, v) {
				return true
			}
		}
	}
	return false
}

// tokenize splits on whitespace, case-folds, and drops tokens shorter than
// minTokenLen, purely numeric, or purely Latin (§4.2).
func tokenize(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?()\"'«»")
		if len(runeLen(f)) < minTokenLen {
			continue
		}
		if isPureDigits(f) || isPureLatin(f) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func runeLen(s string) []rune { return []rune(s) }

func isPureDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func isPureLatin(s string) bool {
	seenLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			seenLetter = true
			if r > unicode.MaxASCII {
				return false
			}
		}
	}
	return seenLetter
}

// suffix rules: (strip, []add) pairs tried in order; the first matching
// strip wins. This approximates pymorphy2's nomn/accs/plural/gender cases
// for the common Russian noun and adjective declension classes without a
// dictionary, per §4.2's documented fallback.
var nounRules = []struct {
	strip string
	forms []string
}{
	{"ость", []string{"ость", "остью", "ости", "остей"}},
	{"ация", []string{"ация", "ацию", "ации", "аций"}},
	{"а", []string{"а", "у", "ы", "ой"}},
	{"я", []string{"я", "ю", "и", "ей"}},
	{"ие", []string{"ие", "ия", "ий"}},
	{"ь", []string{"ь", "я", "и", "ей"}},
	{"", []string{"", "а", "ов", "е"}},
}

var adjRules = []struct {
	strip string
	forms []string
}{
	{"ый", []string{"ый", "ая", "ое", "ые", "ого", "ой"}},
	{"ий", []string{"ий", "яя", "ее", "ие", "его", "ей"}},
}

// wordForms produces up to maxVariantsPerWord surface forms for word,
// always including the original as the first element.
func wordForms(word string) []string {
	seen := map[string]bool{word: true}
	forms := []string{word}

	add := func(f string) {
		if f != "" && !seen[f] {
			seen[f] = true
			forms = append(forms, f)
		}
	}

	for _, rule := range adjRules {
		if strings.HasSuffix(word, rule.strip) {
			stem := strings.TrimSuffix(word, rule.strip)
			for _, form := range rule.forms {
				add(stem + form)
			}
			break
		}
	}

	for _, rule := range nounRules {
		if rule.strip == "" || strings.HasSuffix(word, rule.strip) {
			stem := strings.TrimSuffix(word, rule.strip)
			for _, form := range rule.forms {
				add(stem + form)
			}
			break
		}
	}

	if len(forms) > maxVariantsPerWord {
		forms = forms[:maxVariantsPerWord]
	}
	return forms
}

// expandedQueries builds: the joined original, each single token, and each
// query with exactly one token replaced by one of its variants. Sorted by
// (more tokens first, then lexicographic), capped at maxExpandedQueries.
func expandedQueries(original string, tokens []string, variants map[string][]string) []string {
	seen := map[string]bool{}
	var queries []string

	add := func(q string) {
		q = strings.TrimSpace(q)
		if q == "" || seen[q] {
			return
		}
		seen[q] = true
		queries = append(queries, q)
	}

	add(original)
	for _, tok := range tokens {
		add(tok)
	}
	for i, tok := range tokens {
		for _, variant := range variants[tok] {
			if variant == tok {
				continue
			}
			replaced := make([]string, len(tokens))
			copy(replaced, tokens)
			replaced[i] = variant
			add(strings.Join(replaced, " "))
		}
	}

	sort.SliceStable(queries, func(i, j int) bool {
		ti, tj := len(strings.Fields(queries[i])), len(strings.Fields(queries[j]))
		if ti != tj {
			return ti > tj
		}
		return queries[i] < queries[j]
	})

	if len(queries) > maxExpandedQueries {
		queries = queries[:maxExpandedQueries]
	}
	return queries
}
