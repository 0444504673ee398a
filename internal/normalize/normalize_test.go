package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToFloatHandlesProviderStrings(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{42.5, 42.5, true},
		{int64(7), 7, true},
		{"1,234.56", 1234.56, true},
		{"$99.95", 99.95, true},
		{"12.5%", 12.5, true},
		{"N/A", 0, false},
		{"None", 0, false},
		{"-", 0, false},
		{"", 0, false},
		{"not a number", 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := ToFloat(tt.in)
		assert.Equal(t, tt.ok, ok, "input %v", tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got, "input %v", tt.in)
		}
	}
}

func TestCoerceFloatDefaultsOnFailure(t *testing.T) {
	assert.Equal(t, 3.14, CoerceFloat("3.14", 0))
	assert.Equal(t, -1.0, CoerceFloat("garbage", -1.0))
}

func TestToTimeLayouts(t *testing.T) {
	got, ok := ToTime("2024-02-09")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 2, 9, 0, 0, 0, 0, time.UTC), got)

	got, ok = ToTime("2024-02-09T16:30:00Z")
	require.True(t, ok)
	assert.Equal(t, 16, got.Hour())

	got, ok = ToTime(float64(1707494400))
	require.True(t, ok)
	assert.Equal(t, 2024, got.Year())

	_, ok = ToTime("not a date")
	assert.False(t, ok)
}

func TestMapFundamentalsUsesProviderTable(t *testing.T) {
	raw := map[string]any{
		"Name":                 "Apple Inc",
		"MarketCapitalization": "3000000000000",
		"EPS":                  "6.42",
		"ProfitMargin":         0.25,
		"SomethingUnknown":     "ignored",
		"PERatio":              "None",
	}

	got := MapFundamentals("alphavantage", raw)

	assert.Equal(t, "Apple Inc", got.Strings[FieldName])
	assert.Equal(t, 3e12, got.Numbers[FieldMarketCap])
	assert.Equal(t, 6.42, got.Numbers[FieldEPS])
	assert.Equal(t, 0.25, got.Numbers[FieldNetMargin])
	_, hasPE := got.Numbers[FieldPERatio]
	assert.False(t, hasPE, "placeholder values are dropped, not zeroed")
	assert.NotContains(t, got.Numbers, "SomethingUnknown")
}

func TestMapFundamentalsUnknownProviderPassesCanonicalFields(t *testing.T) {
	raw := map[string]any{
		"market_cap": 1000.0,
		"weird":      2.0,
	}
	got := MapFundamentals("somebody", raw)
	assert.Equal(t, 1000.0, got.Numbers[FieldMarketCap])
	assert.NotContains(t, got.Numbers, "weird")
}

func TestMergeFundamentalsFirstWins(t *testing.T) {
	payloads := []Fundamentals{
		{Numbers: map[string]float64{FieldMarketCap: 100}, Strings: map[string]string{FieldName: "Acme"}},
		{Numbers: map[string]float64{FieldMarketCap: 999, FieldRevenue: 50}, Strings: map[string]string{FieldName: "ACME Corp"}},
	}

	numbers, strs, contributed := MergeFundamentals([]string{"first", "second"}, payloads, nil)

	assert.Equal(t, 100.0, numbers[FieldMarketCap], "earlier provider wins non-quality fields")
	assert.Equal(t, 50.0, numbers[FieldRevenue])
	assert.Equal(t, "Acme", strs[FieldName])
	assert.Equal(t, []string{"first", "second"}, contributed)
}

func TestMergeFundamentalsQualityTieBreak(t *testing.T) {
	payloads := []Fundamentals{
		{Numbers: map[string]float64{FieldEPS: 1.10, FieldMarketCap: 100}},
		{Numbers: map[string]float64{FieldEPS: 1.25}},
	}
	scores := map[string]int{"low": 10, "high": 90}

	numbers, _, contributed := MergeFundamentals([]string{"low", "high"}, payloads, scores)

	assert.Equal(t, 1.25, numbers[FieldEPS], "higher quality score replaces EPS")
	assert.Equal(t, 100.0, numbers[FieldMarketCap], "non-quality field stays first-wins")
	assert.Equal(t, []string{"low", "high"}, contributed)
}

func TestMergeFundamentalsNonContributorExcluded(t *testing.T) {
	payloads := []Fundamentals{
		{Numbers: map[string]float64{FieldEPS: 1.10}},
		{Numbers: map[string]float64{FieldEPS: 1.05}},
	}

	_, _, contributed := MergeFundamentals([]string{"first", "second"}, payloads, nil)

	// the second provider's only field lost the merge, so it contributed nothing
	assert.Equal(t, []string{"first"}, contributed)
}

func TestComputeDerived(t *testing.T) {
	fields := map[string]float64{
		FieldMarketCap:       1000,
		FieldTotalDebt:       200,
		FieldCash:            100,
		FieldRevenue:         500,
		FieldEBITDA:          150,
		FieldNetIncome:       75,
		FieldOperatingIncome: 100,
		FieldTotalEquity:     300,
	}

	ComputeDerived(fields)

	assert.Equal(t, 1100.0, fields[FieldEnterpriseValue])
	assert.Equal(t, 0.3, fields[FieldEBITDAMargin])
	assert.Equal(t, 0.15, fields[FieldNetMargin])
	assert.InDelta(t, 0.158, fields[FieldROIC], 0.001) // 100*(1-0.21)/(200+300)
}

func TestComputeDerivedRequiresAllInputs(t *testing.T) {
	fields := map[string]float64{
		FieldMarketCap: 1000,
		FieldTotalDebt: 200,
		// cash missing
	}
	ComputeDerived(fields)
	_, ok := fields[FieldEnterpriseValue]
	assert.False(t, ok)
}

func TestComputeDerivedNeverOverwritesProviderValue(t *testing.T) {
	fields := map[string]float64{
		FieldNetIncome: 75,
		FieldRevenue:   500,
		FieldNetMargin: 0.99, // provider-supplied
	}
	ComputeDerived(fields)
	assert.Equal(t, 0.99, fields[FieldNetMargin])
}

func TestQualityScoreFallsBackToDefaults(t *testing.T) {
	assert.Equal(t, 90, QualityScore(nil, "fmp"))
	assert.Equal(t, 0, QualityScore(nil, "unknown"))
	assert.Equal(t, 42, QualityScore(map[string]int{"fmp": 42}, "fmp"))
}
