package normalize

// Canonical fundamentals field names. The merge, derived-field formulas, and
// storage layer all key on these.
const (
	FieldName              = "name"
	FieldSector            = "sector"
	FieldIndustry          = "industry"
	FieldMarketCap         = "market_cap"
	FieldRevenue           = "revenue"
	FieldGrossProfit       = "gross_profit"
	FieldOperatingIncome   = "operating_income"
	FieldNetIncome         = "net_income"
	FieldEBITDA            = "ebitda"
	FieldTotalDebt         = "total_debt"
	FieldCash              = "cash"
	FieldTotalEquity       = "total_equity"
	FieldFreeCashFlow      = "free_cash_flow"
	FieldSharesOutstanding = "shares_outstanding"
	FieldEPS               = "eps"
	FieldPERatio           = "pe_ratio"
	FieldDividendYield     = "dividend_yield"
	FieldBeta              = "beta"
	FieldGrossMargin       = "gross_margin"
	FieldOperatingMargin   = "operating_margin"
	FieldNetMargin         = "net_margin"
	FieldEBITDAMargin      = "ebitda_margin"
	FieldFCFMargin         = "fcf_margin"
	FieldEnterpriseValue   = "enterprise_value"
	FieldROIC              = "roic"
)

// fieldTables maps (provider, provider field name) -> canonical field name.
// The table is explicit so a renamed provider field is a one-line change and
// no runtime reflection is involved. Canonical names map to themselves for
// providers that already emit them.
var fieldTables = map[string]map[string]string{
	"polygon": {
		"name":                      FieldName,
		"sic_description":           FieldIndustry,
		"market_cap":                FieldMarketCap,
		"revenues":                  FieldRevenue,
		"gross_profit":              FieldGrossProfit,
		"operating_income_loss":     FieldOperatingIncome,
		"net_income_loss":           FieldNetIncome,
		"ebitda":                    FieldEBITDA,
		"liabilities":               FieldTotalDebt,
		"cash":                      FieldCash,
		"equity":                    FieldTotalEquity,
		"weighted_shares_outstanding": FieldSharesOutstanding,
		"basic_earnings_per_share":  FieldEPS,
	},
	"fmp": {
		"companyName":           FieldName,
		"sector":                FieldSector,
		"industry":              FieldIndustry,
		"mktCap":                FieldMarketCap,
		"revenue":               FieldRevenue,
		"grossProfit":           FieldGrossProfit,
		"operatingIncome":       FieldOperatingIncome,
		"netIncome":             FieldNetIncome,
		"ebitda":                FieldEBITDA,
		"totalDebt":             FieldTotalDebt,
		"cashAndCashEquivalents": FieldCash,
		"totalStockholdersEquity": FieldTotalEquity,
		"freeCashFlow":          FieldFreeCashFlow,
		"sharesOutstanding":     FieldSharesOutstanding,
		"eps":                   FieldEPS,
		"pe":                    FieldPERatio,
		"lastDiv":               FieldDividendYield,
		"beta":                  FieldBeta,
		"grossProfitMargin":     FieldGrossMargin,
		"operatingProfitMargin": FieldOperatingMargin,
	},
	"alphavantage": {
		"Name":                       FieldName,
		"Sector":                     FieldSector,
		"Industry":                   FieldIndustry,
		"MarketCapitalization":       FieldMarketCap,
		"RevenueTTM":                 FieldRevenue,
		"GrossProfitTTM":             FieldGrossProfit,
		"OperatingIncomeTTM":         FieldOperatingIncome,
		"NetIncomeTTM":               FieldNetIncome,
		"EBITDA":                     FieldEBITDA,
		"SharesOutstanding":          FieldSharesOutstanding,
		"EPS":                        FieldEPS,
		"PERatio":                    FieldPERatio,
		"DividendYield":              FieldDividendYield,
		"Beta":                       FieldBeta,
		"ProfitMargin":               FieldNetMargin,
		"OperatingMarginTTM":         FieldOperatingMargin,
	},
	"finnhub": {
		"name":                        FieldName,
		"finnhubIndustry":             FieldIndustry,
		"marketCapitalization":        FieldMarketCap,
		"revenueTTM":                  FieldRevenue,
		"grossMarginTTM":              FieldGrossMargin,
		"operatingMarginTTM":          FieldOperatingMargin,
		"netProfitMarginTTM":          FieldNetMargin,
		"ebitdPerShareTTM":            FieldEBITDA,
		"totalDebt":                   FieldTotalDebt,
		"cashPerSharePerShareQuarterly": FieldCash,
		"shareOutstanding":            FieldSharesOutstanding,
		"epsTTM":                      FieldEPS,
		"peTTM":                       FieldPERatio,
		"dividendYieldIndicatedAnnual": FieldDividendYield,
		"beta":                        FieldBeta,
	},
	"tiingo": {
		"name":             FieldName,
		"sector":           FieldSector,
		"industry":         FieldIndustry,
		"marketCap":        FieldMarketCap,
		"revenue":          FieldRevenue,
		"grossProfit":      FieldGrossProfit,
		"opIncome":         FieldOperatingIncome,
		"netIncome":        FieldNetIncome,
		"ebitda":           FieldEBITDA,
		"debt":             FieldTotalDebt,
		"cashAndEq":        FieldCash,
		"equity":           FieldTotalEquity,
		"freeCashFlow":     FieldFreeCashFlow,
		"sharesBasic":      FieldSharesOutstanding,
		"epsDil":           FieldEPS,
		"peRatio":          FieldPERatio,
		"divYield":         FieldDividendYield,
	},
}

// canonicalFields is the identity table used for providers without a
// registered mapping; canonical field names pass through unchanged.
var canonicalFields = map[string]string{
	FieldName: FieldName, FieldSector: FieldSector, FieldIndustry: FieldIndustry,
	FieldMarketCap: FieldMarketCap, FieldRevenue: FieldRevenue,
	FieldGrossProfit: FieldGrossProfit, FieldOperatingIncome: FieldOperatingIncome,
	FieldNetIncome: FieldNetIncome, FieldEBITDA: FieldEBITDA,
	FieldTotalDebt: FieldTotalDebt, FieldCash: FieldCash,
	FieldTotalEquity: FieldTotalEquity, FieldFreeCashFlow: FieldFreeCashFlow,
	FieldSharesOutstanding: FieldSharesOutstanding, FieldEPS: FieldEPS,
	FieldPERatio: FieldPERatio, FieldDividendYield: FieldDividendYield,
	FieldBeta: FieldBeta, FieldGrossMargin: FieldGrossMargin,
	FieldOperatingMargin: FieldOperatingMargin, FieldNetMargin: FieldNetMargin,
}

// stringFields are canonical fields carried as text, not numbers.
var stringFields = map[string]struct{}{
	FieldName:     {},
	FieldSector:   {},
	FieldIndustry: {},
}

// Fundamentals is the canonical intermediate form of one provider's
// fundamentals payload.
type Fundamentals struct {
	Numbers map[string]float64
	Strings map[string]string
}

// MapFundamentals translates a provider-native payload into canonical form
// using the provider's field table. Unknown fields are dropped; values that
// fail coercion are dropped rather than defaulted so the merge never treats
// a bad value as authoritative.
func MapFundamentals(provider string, raw map[string]any) Fundamentals {
	table, ok := fieldTables[provider]
	if !ok {
		table = canonicalFields
	}

	out := Fundamentals{
		Numbers: make(map[string]float64),
		Strings: make(map[string]string),
	}

	for providerField, value := range raw {
		canonical, ok := table[providerField]
		if !ok {
			continue
		}
		if _, isString := stringFields[canonical]; isString {
			if s, ok := ToString(value); ok {
				out.Strings[canonical] = s
			}
			continue
		}
		if f, ok := ToFloat(value); ok {
			out.Numbers[canonical] = f
		}
	}

	return out
}

// RegisterFieldTable installs or replaces the normalization table for a
// provider. Intended for wiring providers added outside this package.
func RegisterFieldTable(provider string, table map[string]string) {
	fieldTables[provider] = table
}
