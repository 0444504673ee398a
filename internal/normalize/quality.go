package normalize

// DefaultQualityScores ranks providers for the handful of numeric metrics
// known to disagree across sources. Higher wins. The table is explicit and
// hand-maintained; callers may override it wholesale or per provider via
// config.
var DefaultQualityScores = map[string]int{
	"fmp":          90,
	"polygon":      85,
	"tiingo":       75,
	"alphavantage": 60,
	"finnhub":      55,
}

// qualityFields are the metrics where the quality score, not first-wins
// priority, resolves conflicts between providers.
var qualityFields = map[string]struct{}{
	FieldGrossMargin:     {},
	FieldOperatingMargin: {},
	FieldNetMargin:       {},
	FieldEBITDA:          {},
	FieldPERatio:         {},
	FieldEPS:             {},
}

// IsQualityField reports whether conflicts on the canonical field are
// resolved by provider quality score.
func IsQualityField(field string) bool {
	_, ok := qualityFields[field]
	return ok
}

// QualityScore looks up a provider's score in the given table, falling back
// to the default table, then zero.
func QualityScore(overrides map[string]int, provider string) int {
	if overrides != nil {
		if score, ok := overrides[provider]; ok {
			return score
		}
	}
	return DefaultQualityScores[provider]
}

// MergeFundamentals folds provider payloads (already in canonical form, in
// provider priority order) into one field set. The first provider supplying
// a value wins; for quality fields a higher-scored provider later in the
// order replaces an earlier lower-scored value. Returns the merged numbers,
// strings, and the providers that contributed at least one field in order.
func MergeFundamentals(providers []string, payloads []Fundamentals, scores map[string]int) (map[string]float64, map[string]string, []string) {
	numbers := make(map[string]float64)
	strings := make(map[string]string)
	numberSource := make(map[string]string)
	contributed := make([]string, 0, len(providers))

	for i, payload := range payloads {
		provider := providers[i]
		used := false

		for field, value := range payload.Numbers {
			_, exists := numbers[field]
			switch {
			case !exists:
				numbers[field] = value
				numberSource[field] = provider
				used = true
			case IsQualityField(field) && QualityScore(scores, provider) > QualityScore(scores, numberSource[field]):
				numbers[field] = value
				numberSource[field] = provider
				used = true
			}
		}

		for field, value := range payload.Strings {
			if _, exists := strings[field]; !exists {
				strings[field] = value
				used = true
			}
		}

		if used {
			contributed = append(contributed, provider)
		}
	}

	return numbers, strings, contributed
}
