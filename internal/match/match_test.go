package match

import (
	"testing"

	"github.com/pbarbosa/zapbridge/internal/domain"
)

func yesNoChoices() []domain.Choice {
	return []domain.Choice{
		{ID: "a", Label: "Sim"},
		{ID: "b", Label: "Não"},
	}
}

func TestResolveNumericLiteral(t *testing.T) {
	m := Resolve("2", yesNoChoices())
	if m == nil {
		t.Fatal("Expected a match for numeric input")
	}
	if m.ChoiceID != "b" || m.Score != 1.0 {
		t.Errorf("Expected choice b with score 1.0, got %q score %v", m.ChoiceID, m.Score)
	}
}

func TestResolveNumericOutOfRange(t *testing.T) {
	if m := Resolve("7", yesNoChoices()); m != nil {
		t.Errorf("Expected no match for out-of-range number, got %+v", m)
	}
}

func TestResolveNumericInsideSentence(t *testing.T) {
	m := Resolve("quero a opção 1", yesNoChoices())
	if m == nil || m.ChoiceID != "a" {
		t.Fatalf("Expected choice a, got %+v", m)
	}
}

func TestResolveSpokenNumberWord(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"segundo", "b"},
		{"segunda", "b"},
		{"dois", "b"},
		{"a primeira", "a"},
		{"um", "a"},
	}
	for _, tc := range cases {
		m := Resolve(tc.input, yesNoChoices())
		if m == nil {
			t.Errorf("Input %q: expected a match", tc.input)
			continue
		}
		if m.ChoiceID != tc.want || m.Score != 1.0 {
			t.Errorf("Input %q: expected %q score 1.0, got %q score %v", tc.input, tc.want, m.ChoiceID, m.Score)
		}
	}
}

func TestResolveCompoundNumberWords(t *testing.T) {
	choices := make([]domain.Choice, 30)
	for i := range choices {
		choices[i] = domain.Choice{ID: string(rune('a' + i%26)), Label: "Opção"}
	}

	cases := []struct {
		input string
		index int
	}{
		{"vinte e um", 21},
		{"vinte", 20},
		{"vigésimo primeiro", 21},
		{"décimo segundo", 12},
		{"quinze", 15},
	}
	for _, tc := range cases {
		m := Resolve(tc.input, choices)
		if m == nil {
			t.Errorf("Input %q: expected a match", tc.input)
			continue
		}
		if m.ChoiceID != choices[tc.index-1].ID {
			t.Errorf("Input %q: expected choice at position %d", tc.input, tc.index)
		}
	}
}

func TestResolveExactContainment(t *testing.T) {
	m := Resolve("sim", yesNoChoices())
	if m == nil {
		t.Fatal("Expected a match for exact phrase")
	}
	if m.ChoiceID != "a" || m.Score != 1.0 {
		t.Errorf("Expected choice a with score 1.0, got %q score %v", m.ChoiceID, m.Score)
	}
}

func TestResolveContainmentInsideSentence(t *testing.T) {
	choices := []domain.Choice{
		{ID: "x", Label: "Falar com atendente"},
		{ID: "y", Label: "Ver meu pedido"},
	}
	m := Resolve("eu quero falar com atendente por favor", choices)
	if m == nil || m.ChoiceID != "x" {
		t.Fatalf("Expected choice x, got %+v", m)
	}
}

func TestResolveContainmentIgnoresAccents(t *testing.T) {
	m := Resolve("nao", yesNoChoices())
	if m == nil || m.ChoiceID != "b" {
		t.Fatalf("Expected choice b for unaccented input, got %+v", m)
	}
}

func TestResolveFuzzyBelowThreshold(t *testing.T) {
	if m := Resolve("talvez", yesNoChoices()); m != nil {
		t.Errorf("Expected nil for unrelated input, got %+v", m)
	}
}

func TestResolveFuzzyAboveThreshold(t *testing.T) {
	choices := []domain.Choice{
		{ID: "x", Label: "Segunda via de boleto"},
		{ID: "y", Label: "Cancelamento"},
	}
	m := Resolve("quero meu boleto", choices)
	if m == nil {
		t.Fatal("Expected a fuzzy match")
	}
	if m.ChoiceID != "x" {
		t.Errorf("Expected choice x, got %q", m.ChoiceID)
	}
	if m.Score < FuzzyThreshold || m.Score >= 1.0 {
		t.Errorf("Expected fuzzy score in [%v, 1.0), got %v", FuzzyThreshold, m.Score)
	}
}

func TestResolveFuzzyStableUnderReordering(t *testing.T) {
	a := []domain.Choice{
		{ID: "x", Label: "Segunda via de boleto"},
		{ID: "y", Label: "Cancelamento do plano"},
	}
	b := []domain.Choice{a[1], a[0]}

	ma := Resolve("cancelar plano", a)
	mb := Resolve("cancelar plano", b)
	if ma == nil || mb == nil {
		t.Fatal("Expected fuzzy matches in both orders")
	}
	if ma.ChoiceID != mb.ChoiceID || ma.Score != mb.Score {
		t.Errorf("Fuzzy result changed with list order: %+v vs %+v", ma, mb)
	}
}

func TestResolveEmptyInput(t *testing.T) {
	if m := Resolve("   ", yesNoChoices()); m != nil {
		t.Errorf("Expected nil for blank input, got %+v", m)
	}
	if m := Resolve("sim", nil); m != nil {
		t.Errorf("Expected nil for empty choice list, got %+v", m)
	}
}

func TestNormalizeStripsFillerAndPunctuation(t *testing.T) {
	got := normalize("Eu quero a opção 2, por favor!")
	if got != "2" {
		t.Errorf("Expected %q, got %q", "2", got)
	}
}

func TestNumberPriorityOverContainment(t *testing.T) {
	// "2" must resolve by position even when a label contains the digit.
	choices := []domain.Choice{
		{ID: "a", Label: "Plano 2 GB"},
		{ID: "b", Label: "Plano 10 GB"},
	}
	m := Resolve("2", choices)
	if m == nil || m.ChoiceID != "b" {
		t.Fatalf("Expected positional choice b, got %+v", m)
	}
}
