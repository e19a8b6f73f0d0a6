// Package match resolves free-form user input against a presented choice set.
//
// Resolution is a strict-priority cascade: numeric literal, spoken number
// word, exact containment, then fuzzy similarity. Each stage returns
// immediately on a hit. The package is pure; clearing a consumed choice set
// is the caller's responsibility.
package match

import (
	"strconv"
	"strings"

	"github.com/pbarbosa/zapbridge/internal/domain"
)

// FuzzyThreshold is the minimum similarity score for a fuzzy match.
const FuzzyThreshold = 0.4

// Match is a resolved choice.
type Match struct {
	ChoiceID string
	Content  string
	Score    float64
}

// fillerWords are pt-BR stop words stripped during normalization. The
// conjunction "e" is deliberately absent: compound number words need it.
var fillerWords = map[string]bool{
	"o": true, "a": true, "os": true, "as": true,
	"de": true, "do": true, "da": true, "dos": true, "das": true,
	"que": true, "por": true, "favor": true,
	"quero": true, "queria": true, "gostaria": true,
	"eu": true, "acho": true, "opcao": true, "numero": true,
}

var diacriticReplacer = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ã", "a", "ä", "a",
	"é", "e", "è", "e", "ê", "e", "ë", "e",
	"í", "i", "ì", "i", "î", "i", "ï", "i",
	"ó", "o", "ò", "o", "ô", "o", "õ", "o", "ö", "o",
	"ú", "u", "ù", "u", "û", "u", "ü", "u",
	"ç", "c",
)

// Resolve returns the best-matching choice for raw input, or nil when
// nothing matches above threshold.
func Resolve(raw string, choices []domain.Choice) *Match {
	if len(choices) == 0 {
		return nil
	}

	norm := normalize(raw)
	if norm == "" {
		return nil
	}

	if m := matchNumeric(norm, choices); m != nil {
		return m
	}
	if m := matchNumberWord(norm, choices); m != nil {
		return m
	}
	if m := matchContainment(norm, choices); m != nil {
		return m
	}
	return matchFuzzy(norm, choices)
}

// normalize lowercases, folds diacritics, strips punctuation and filler
// words, and collapses whitespace.
func normalize(s string) string {
	s = diacriticReplacer.Replace(strings.ToLower(s))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}

	tokens := strings.Fields(b.String())
	kept := tokens[:0]
	for _, t := range tokens {
		if !fillerWords[t] {
			kept = append(kept, t)
		}
	}
	return strings.Join(kept, " ")
}

// matchNumeric matches the first integer token against a choice position.
func matchNumeric(norm string, choices []domain.Choice) *Match {
	for _, t := range strings.Fields(norm) {
		n, err := strconv.Atoi(t)
		if err != nil {
			continue
		}
		// Only the first integer token is considered.
		if n >= 1 && n <= len(choices) {
			return exact(choices[n-1])
		}
		return nil
	}
	return nil
}

// matchNumberWord matches spoken cardinal/ordinal number words against a
// choice position.
func matchNumberWord(norm string, choices []domain.Choice) *Match {
	tokens := strings.Fields(norm)
	for i := 0; i < len(tokens); i++ {
		n, consumed := numberAt(tokens, i)
		if consumed == 0 {
			continue
		}
		if n >= 1 && n <= len(choices) {
			return exact(choices[n-1])
		}
		i += consumed - 1
	}
	return nil
}

// matchContainment matches when the normalized input contains a normalized
// choice label or vice versa. First hit in list order wins.
func matchContainment(norm string, choices []domain.Choice) *Match {
	for _, c := range choices {
		label := normalize(c.Label)
		if label == "" {
			continue
		}
		if strings.Contains(norm, label) || strings.Contains(label, norm) {
			return exact(c)
		}
	}
	return nil
}

// matchFuzzy picks the choice with the highest token-based similarity and
// returns it when the score clears the threshold. Scoring is stable under
// reordering of the choice list; ties keep the earliest choice.
func matchFuzzy(norm string, choices []domain.Choice) *Match {
	best := -1
	bestScore := 0.0
	for i, c := range choices {
		score := similarity(norm, normalize(c.Label))
		if score > bestScore {
			best = i
			bestScore = score
		}
	}
	if best < 0 || bestScore < FuzzyThreshold {
		return nil
	}
	return &Match{
		ChoiceID: choices[best].ID,
		Content:  choices[best].Label,
		Score:    bestScore,
	}
}

func exact(c domain.Choice) *Match {
	return &Match{ChoiceID: c.ID, Content: c.Label, Score: 1.0}
}

// similarity is the Dice coefficient over character bigrams of the
// token-sorted strings, in [0, 1].
func similarity(a, b string) float64 {
	a = sortTokens(a)
	b = sortTokens(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	ba := bigrams(a)
	bb := bigrams(b)
	if len(ba) == 0 || len(bb) == 0 {
		return 0
	}

	overlap := 0
	total := 0
	for g, n := range ba {
		total += n
		if m := bb[g]; m > 0 {
			if m < n {
				overlap += m
			} else {
				overlap += n
			}
		}
	}
	for _, n := range bb {
		total += n
	}

	return 2 * float64(overlap) / float64(total)
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	for i := 1; i < len(tokens); i++ {
		for j := i; j > 0 && tokens[j] < tokens[j-1]; j-- {
			tokens[j], tokens[j-1] = tokens[j-1], tokens[j]
		}
	}
	return strings.Join(tokens, " ")
}

func bigrams(s string) map[string]int {
	runes := []rune(s)
	grams := make(map[string]int, len(runes))
	for i := 0; i+1 < len(runes); i++ {
		grams[string(runes[i:i+2])]++
	}
	return grams
}
