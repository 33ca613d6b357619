package domain

// Side distinguishes collateral from debt positions.
type Side string

const (
	SideCollateral Side = "collateral"
	SideDebt       Side = "debt"
)

// Position is an immutable snapshot of one user's holding in one reserve at
// portfolio-fetch time. Amount is in native asset units; AmountUSD is the
// valuation at snapshot prices.
type Position struct {
	UserAddress          string
	Symbol               string
	Side                 Side
	Amount               float64
	AmountUSD            float64
	LiquidationThreshold float64
	CollateralEnabled    bool
	EModeCategoryID      int
}

// EModeCategory is an efficiency-mode category. When a user opts into one,
// its liquidation threshold overrides the base threshold of every enabled
// collateral position.
type EModeCategory struct {
	ID                   int
	Label                string
	LTV                  float64
	LiquidationThreshold float64
	LiquidationBonus     float64
}

// User is one borrower with its position snapshot. EModeCategoryID is 0 when
// the user has not opted into an efficiency mode.
type User struct {
	Address         string
	EModeCategoryID int
	Collateral      []Position
	Debt            []Position
}

// TotalDebtUSD values the user's debt at the given prices. Assets missing
// from the price map contribute nothing; callers that care use the solvency
// evaluator, which enforces a fallback policy instead.
func (u *User) TotalDebtUSD(prices map[string]float64) float64 {
	var total float64
	for i := range u.Debt {
		total += u.Debt[i].Amount * prices[u.Debt[i].Symbol]
	}
	return total
}

// TotalCollateralUSD values the user's raw collateral (no threshold
// weighting) at the given prices.
func (u *User) TotalCollateralUSD(prices map[string]float64) float64 {
	var total float64
	for i := range u.Collateral {
		total += u.Collateral[i].Amount * prices[u.Collateral[i].Symbol]
	}
	return total
}

// HealthFactor is LT-weighted enabled collateral over debt. Returns +Inf
// semantics via ok=false when the user has no debt.
func (u *User) HealthFactor(prices map[string]float64) (hf float64, ok bool) {
	debt := u.TotalDebtUSD(prices)
	if debt == 0 {
		return 0, false
	}
	var weighted float64
	for i := range u.Collateral {
		p := &u.Collateral[i]
		if !p.CollateralEnabled {
			continue
		}
		weighted += p.Amount * prices[p.Symbol] * p.LiquidationThreshold
	}
	return weighted / debt, true
}
