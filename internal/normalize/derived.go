package normalize

// corporate tax rate assumed for NOPAT when computing ROIC
const taxRate = 0.21

// ComputeDerived fills canonical fields no provider supplies directly from
// already-merged raw fields. A derived value is only computed when every
// required input is present, and never overwrites a provider-supplied value.
func ComputeDerived(fields map[string]float64) {
	marketCap, hasMarketCap := fields[FieldMarketCap]
	totalDebt, hasDebt := fields[FieldTotalDebt]
	cash, hasCash := fields[FieldCash]
	revenue, hasRevenue := fields[FieldRevenue]
	ebitda, hasEBITDA := fields[FieldEBITDA]
	netIncome, hasNetIncome := fields[FieldNetIncome]
	grossProfit, hasGrossProfit := fields[FieldGrossProfit]
	operatingIncome, hasOperatingIncome := fields[FieldOperatingIncome]
	totalEquity, hasEquity := fields[FieldTotalEquity]
	fcf, hasFCF := fields[FieldFreeCashFlow]

	if _, set := fields[FieldEnterpriseValue]; !set && hasMarketCap && hasDebt && hasCash {
		fields[FieldEnterpriseValue] = marketCap + totalDebt - cash
	}

	if _, set := fields[FieldEBITDAMargin]; !set && hasEBITDA && hasRevenue && revenue != 0 {
		fields[FieldEBITDAMargin] = ebitda / revenue
	}

	if _, set := fields[FieldNetMargin]; !set && hasNetIncome && hasRevenue && revenue != 0 {
		fields[FieldNetMargin] = netIncome / revenue
	}

	if _, set := fields[FieldGrossMargin]; !set && hasGrossProfit && hasRevenue && revenue != 0 {
		fields[FieldGrossMargin] = grossProfit / revenue
	}

	if _, set := fields[FieldFCFMargin]; !set && hasFCF && hasRevenue && revenue != 0 {
		fields[FieldFCFMargin] = fcf / revenue
	}

	if _, set := fields[FieldROIC]; !set && hasOperatingIncome && hasDebt && hasEquity {
		investedCapital := totalDebt + totalEquity
		if investedCapital != 0 {
			nopat := operatingIncome * (1 - taxRate)
			fields[FieldROIC] = nopat / investedCapital
		}
	}
}
