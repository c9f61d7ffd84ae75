package advisory

import (
	"regexp"
	"strconv"
	"strings"

	"salvage-radar/models"
)

// Field identifies one labeled value of an oracle reply.
type Field uint16

const (
	FieldMarketValue Field = 1 << iota
	FieldRepairCost
	FieldTransportCost
	FieldCustomsCost
	FieldTotalCost
	FieldProfit
	FieldMargin
	FieldRisk
	FieldMaxBid
	FieldRecommendation
)

// Fields is a set of Field values.
type Fields uint16

func (f Fields) Has(field Field) bool { return f&Fields(field) != 0 }

func (f *Fields) add(field Field) { *f |= Fields(field) }

// Defaults applied to every field the reply does not provide.
const (
	DefaultMarketValue   = 50000.0
	DefaultRepairCost    = 10000.0
	DefaultTransportCost = 8000.0
	DefaultCustomsCost   = 5000.0
	DefaultProfit        = 10000.0
	DefaultProfitMargin  = 0.20
	DefaultRiskScore     = 5

	emptyReplyRationale = "advisory reply was empty"
)

// labels are matched against normalized lines, first hit wins.
var labels = []struct {
	prefix string
	field  Field
}{
	{"WARTOSC RYNKOWA", FieldMarketValue},
	{"MARKET VALUE", FieldMarketValue},
	{"KOSZT NAPRAWY", FieldRepairCost},
	{"REPAIR COST", FieldRepairCost},
	{"KOSZT TRANSPORTU", FieldTransportCost},
	{"TRANSPORT COST", FieldTransportCost},
	{"KOSZT CLA", FieldCustomsCost},
	{"CLO", FieldCustomsCost},
	{"CUSTOMS", FieldCustomsCost},
	{"KOSZT CALKOWITY", FieldTotalCost},
	{"TOTAL COST", FieldTotalCost},
	{"ZYSK NETTO", FieldProfit},
	{"NET PROFIT", FieldProfit},
	{"MARZA", FieldMargin},
	{"PROFIT MARGIN", FieldMargin},
	{"RYZYKO", FieldRisk},
	{"RISK", FieldRisk},
	{"MAKS. OFERTA", FieldMaxBid},
	{"MAKS OFERTA", FieldMaxBid},
	{"MAX BID", FieldMaxBid},
	{"REKOMENDACJA", FieldRecommendation},
	{"RECOMMENDATION", FieldRecommendation},
}

var (
	// numberRegexp takes the first digit run together with its . and , separators.
	numberRegexp = regexp.MustCompile(`\d[\d.,]*`)

	diacritics = strings.NewReplacer(
		"ą", "a", "ć", "c", "ę", "e", "ł", "l", "ń", "n", "ó", "o", "ś", "s", "ź", "z", "ż", "z",
		"Ą", "A", "Ć", "C", "Ę", "E", "Ł", "L", "Ń", "N", "Ó", "O", "Ś", "S", "Ź", "Z", "Ż", "Z",
	)

	whitespace = strings.NewReplacer(" ", "", "\t", "", "\u00a0", "", "\u202f", "")
)

// Result is a parsed reply plus the set of fields the text actually supplied.
type Result struct {
	Analysis models.Analysis
	Matched  Fields
}

// DefaultAnalysis returns the record every parse starts from.
func DefaultAnalysis(rationale string) models.Analysis {
	return models.Analysis{
		MarketValue:      DefaultMarketValue,
		RepairCost:       DefaultRepairCost,
		TransportCost:    DefaultTransportCost,
		CustomsCost:      DefaultCustomsCost,
		PotentialProfit:  DefaultProfit,
		ProfitMargin:     DefaultProfitMargin,
		RiskScore:        DefaultRiskScore,
		Recommendation:   models.RecommendationCaution,
		DetailedAnalysis: rationale,
	}
}

// Parse scans an oracle reply line by line. It never fails: unknown lines
// are ignored, unmatched fields keep their defaults, and when a label occurs
// more than once the last occurrence wins.
func Parse(text string) Result {
	rationale := text
	if strings.TrimSpace(rationale) == "" {
		rationale = emptyReplyRationale
	}
	res := Result{Analysis: DefaultAnalysis(rationale)}
	a := &res.Analysis

	for _, raw := range strings.Split(text, "\n") {
		line := normalizeLine(raw)
		field, rest, ok := matchLabel(line)
		if !ok {
			continue
		}

		if field == FieldRecommendation {
			a.Recommendation = classify(rest)
			res.Matched.add(field)
			continue
		}

		v, ok := extractNumber(rest)
		if !ok {
			continue
		}
		switch field {
		case FieldMarketValue:
			a.MarketValue = v
		case FieldRepairCost:
			a.RepairCost = v
		case FieldTransportCost:
			a.TransportCost = v
		case FieldCustomsCost:
			a.CustomsCost = v
		case FieldTotalCost:
			a.TotalCost = v
		case FieldProfit:
			if isNegative(rest) {
				v = -v
			}
			a.PotentialProfit = v
		case FieldMargin:
			// "1%" is 0.01; a bare number is a fraction unless it exceeds 1.
			if strings.Contains(rest, "%") || v > 1 {
				v /= 100
			}
			if isNegative(rest) {
				v = -v
			}
			a.ProfitMargin = v
		case FieldRisk:
			a.RiskScore = models.ClampRisk(int(v))
		case FieldMaxBid:
			a.MaxBidPrice = v
		}
		res.Matched.add(field)
	}

	return res
}

// normalizeLine trims markdown decoration, folds Polish diacritics and
// upper-cases the line.
func normalizeLine(line string) string {
	line = strings.TrimSpace(line)
	line = strings.TrimLeft(line, "-*•#> \t")
	line = strings.ReplaceAll(line, "**", "")
	line = strings.ReplaceAll(line, "__", "")
	return strings.ToUpper(diacritics.Replace(line))
}

// matchLabel returns the field of a labeled line and the text after the
// label's colon.
func matchLabel(line string) (Field, string, bool) {
	for _, l := range labels {
		if !strings.HasPrefix(line, l.prefix) {
			continue
		}
		rest := strings.TrimSpace(line[len(l.prefix):])
		// "RISK:" but not "RISKY ..." prose.
		if !strings.HasPrefix(rest, ":") {
			if i := strings.IndexByte(rest, ':'); i < 0 || strings.ContainsAny(rest[:i], " ") {
				continue
			} else {
				rest = rest[i:]
			}
		}
		return l.field, strings.TrimSpace(rest[1:]), true
	}
	return 0, "", false
}

// negatedBuy phrases read as AVOID even though they contain a BUY keyword.
var negatedBuy = []string{"NIE KUPUJ", "NOT BUY", "DONT BUY", "NO BUY"}

var apostrophes = strings.NewReplacer("'", "", "\u2019", "")

func classify(text string) models.Recommendation {
	text = apostrophes.Replace(text)
	for _, neg := range negatedBuy {
		if strings.Contains(text, neg) {
			return models.RecommendationAvoid
		}
	}

	switch {
	case strings.Contains(text, "KUPUJ"), strings.Contains(text, "BUY"):
		return models.RecommendationBuy
	case strings.Contains(text, "UNIKAJ"), strings.Contains(text, "AVOID"):
		return models.RecommendationAvoid
	case strings.Contains(text, "OSTROZNIE"), strings.Contains(text, "CAUTION"):
		return models.RecommendationCaution
	}
	return models.RecommendationCaution
}

func isNegative(text string) bool {
	s := whitespace.Replace(text)
	i := strings.IndexFunc(s, func(r rune) bool { return r >= '0' && r <= '9' })
	return i > 0 && (s[i-1] == '-' || strings.HasSuffix(s[:i], "−"))
}

// extractNumber reads the first number of text. Whitespace inside the number
// is ignored ("145 000" is 145000). A separator followed by exactly three
// digits groups thousands, any other separator is the decimal point, except
// after a leading zero ("0.325" is a fraction).
func extractNumber(text string) (float64, bool) {
	token := numberRegexp.FindString(whitespace.Replace(text))
	token = strings.TrimRight(token, ".,")
	if token == "" {
		return 0, false
	}

	v, err := strconv.ParseFloat(normalizeSeparators(token), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func normalizeSeparators(token string) string {
	lastDot := strings.LastIndexByte(token, '.')
	lastComma := strings.LastIndexByte(token, ',')

	// Both kinds present: the one that appears last is the decimal point.
	if lastDot >= 0 && lastComma >= 0 {
		if lastDot > lastComma {
			return strings.ReplaceAll(token, ",", "")
		}
		return strings.ReplaceAll(strings.ReplaceAll(token, ".", ""), ",", ".")
	}

	sep := "."
	if lastComma >= 0 {
		sep = ","
	}
	groups := strings.Split(token, sep)
	if len(groups) == 1 {
		return token
	}

	thousands := groups[0] != "0" && len(groups[0]) <= 3
	for _, g := range groups[1:] {
		if len(g) != 3 {
			thousands = false
			break
		}
	}
	if thousands {
		return strings.Join(groups, "")
	}
	if len(groups) == 2 {
		return groups[0] + "." + groups[1]
	}
	// Ambiguous runs like "1.2.3": keep the leading integer part.
	return groups[0]
}
