package match

// pt-BR number-word tables covering 1-100, cardinal and ordinal forms.
// Keys are post-normalization: lowercase, diacritics folded.

var cardinalUnits = map[string]int{
	"um": 1, "uma": 1,
	"dois": 2, "duas": 2,
	"tres":   3,
	"quatro": 4,
	"cinco":  5,
	"seis":   6,
	"sete":   7,
	"oito":   8,
	"nove":   9,
}

var cardinalTeens = map[string]int{
	"dez":       10,
	"onze":      11,
	"doze":      12,
	"treze":     13,
	"catorze":   14,
	"quatorze":  14,
	"quinze":    15,
	"dezesseis": 16,
	"dezessete": 17,
	"dezoito":   18,
	"dezenove":  19,
}

var cardinalTens = map[string]int{
	"vinte":     20,
	"trinta":    30,
	"quarenta":  40,
	"cinquenta": 50,
	"sessenta":  60,
	"setenta":   70,
	"oitenta":   80,
	"noventa":   90,
}

var cardinalHundred = map[string]int{
	"cem":   100,
	"cento": 100,
}

var ordinalUnits = map[string]int{
	"primeiro": 1, "primeira": 1,
	"segundo": 2, "segunda": 2,
	"terceiro": 3, "terceira": 3,
	"quarto": 4, "quarta": 4,
	"quinto": 5, "quinta": 5,
	"sexto": 6, "sexta": 6,
	"setimo": 7, "setima": 7,
	"oitavo": 8, "oitava": 8,
	"nono": 9, "nona": 9,
}

var ordinalTens = map[string]int{
	"decimo": 10, "decima": 10,
	"vigesimo": 20, "vigesima": 20,
	"trigesimo": 30, "trigesima": 30,
	"quadragesimo": 40, "quadragesima": 40,
	"quinquagesimo": 50, "quinquagesima": 50,
	"sexagesimo": 60, "sexagesima": 60,
	"septuagesimo": 70, "septuagesima": 70, "setuagesimo": 70, "setuagesima": 70,
	"octogesimo": 80, "octogesima": 80,
	"nonagesimo": 90, "nonagesima": 90,
	"centesimo": 100, "centesima": 100,
}

// numberAt decodes the number word starting at tokens[i]. It returns the
// value and how many tokens it consumed, or (0, 0) when tokens[i] is not a
// number word. Compounds are recognized in both systems: cardinal
// "vinte e um" and ordinal "vigesimo primeiro".
func numberAt(tokens []string, i int) (int, int) {
	t := tokens[i]

	if v, ok := cardinalTens[t]; ok {
		if i+2 < len(tokens) && tokens[i+1] == "e" {
			if u, ok := cardinalUnits[tokens[i+2]]; ok {
				return v + u, 3
			}
		}
		return v, 1
	}

	if v, ok := ordinalTens[t]; ok {
		if v < 100 && i+1 < len(tokens) {
			if u, ok := ordinalUnits[tokens[i+1]]; ok {
				return v + u, 2
			}
		}
		return v, 1
	}

	if v, ok := cardinalUnits[t]; ok {
		return v, 1
	}
	if v, ok := cardinalTeens[t]; ok {
		return v, 1
	}
	if v, ok := cardinalHundred[t]; ok {
		return v, 1
	}
	if v, ok := ordinalUnits[t]; ok {
		return v, 1
	}

	return 0, 0
}
