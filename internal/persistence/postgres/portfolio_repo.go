package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/defirisk/lendvar/internal/domain"
	"github.com/defirisk/lendvar/internal/persistence"
)

type portfolioRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPortfolioRepo creates a PostgreSQL-backed PortfolioStore.
func NewPortfolioRepo(db *sqlx.DB, timeout time.Duration) persistence.PortfolioStore {
	return &portfolioRepo{db: db, timeout: timeout}
}

type userRow struct {
	Address   string  `db:"user_address"`
	EModeCat  int     `db:"user_emode_category"`
	TotalDebt float64 `db:"total_debt_usd"`
}

type positionRow struct {
	UserAddress string  `db:"user_address"`
	Symbol      string  `db:"symbol"`
	Side        string  `db:"side"`
	Amount      float64 `db:"amount"`
	AmountUSD   float64 `db:"amount_usd"`
	LT          float64 `db:"liquidation_threshold"`
	Enabled     bool    `db:"usage_as_collateral_enabled"`
	EModeCat    int     `db:"emode_category_id"`
}

func (r *portfolioRepo) TopBorrowers(ctx context.Context, limit int) ([]*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var userRows []userRow
	err := r.db.SelectContext(ctx, &userRows, `
		SELECT user_address, COALESCE(user_emode_category, 0) AS user_emode_category,
		       total_debt_usd
		FROM users
		WHERE total_debt_usd > 0
		ORDER BY total_debt_usd DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load borrowers: %w", err)
	}
	if len(userRows) == 0 {
		return nil, nil
	}

	addresses := make([]string, len(userRows))
	users := make(map[string]*domain.User, len(userRows))
	ordered := make([]*domain.User, 0, len(userRows))
	for i, row := range userRows {
		addresses[i] = row.Address
		u := &domain.User{Address: row.Address, EModeCategoryID: row.EModeCat}
		users[row.Address] = u
		ordered = append(ordered, u)
	}

	query, args, err := sqlx.In(`
		SELECT user_address, symbol, side, amount, amount_usd,
		       COALESCE(liquidation_threshold, 0) AS liquidation_threshold,
		       COALESCE(usage_as_collateral_enabled, false) AS usage_as_collateral_enabled,
		       COALESCE(emode_category_id, 0) AS emode_category_id
		FROM positions
		WHERE user_address IN (?)`, addresses)
	if err != nil {
		return nil, fmt.Errorf("failed to build positions query: %w", err)
	}

	var posRows []positionRow
	if err := r.db.SelectContext(ctx, &posRows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to load positions: %w", err)
	}

	for _, row := range posRows {
		u := users[row.UserAddress]
		if u == nil {
			continue
		}
		pos := domain.Position{
			UserAddress:          row.UserAddress,
			Symbol:               row.Symbol,
			Side:                 domain.Side(row.Side),
			Amount:               row.Amount,
			AmountUSD:            row.AmountUSD,
			LiquidationThreshold: row.LT,
			CollateralEnabled:    row.Enabled,
			EModeCategoryID:      row.EModeCat,
		}
		switch pos.Side {
		case domain.SideCollateral:
			u.Collateral = append(u.Collateral, pos)
		case domain.SideDebt:
			u.Debt = append(u.Debt, pos)
		}
	}
	return ordered, nil
}

func (r *portfolioRepo) EModeCategories(ctx context.Context) ([]domain.EModeCategory, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT id, label, COALESCE(ltv, 0), COALESCE(liquidation_threshold, 0),
		       COALESCE(liquidation_bonus, 0)
		FROM emode_categories`)
	if err != nil {
		return nil, fmt.Errorf("failed to load emode categories: %w", err)
	}
	defer rows.Close()

	var cats []domain.EModeCategory
	for rows.Next() {
		var c domain.EModeCategory
		if err := rows.Scan(&c.ID, &c.Label, &c.LTV, &c.LiquidationThreshold, &c.LiquidationBonus); err != nil {
			return nil, fmt.Errorf("failed to scan emode category: %w", err)
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

func (r *portfolioRepo) ReplacePortfolio(ctx context.Context, users []*domain.User, emodes []domain.EModeCategory) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(users)/500+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"positions", "users", "emode_categories"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	emodeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO emode_categories (id, label, ltv, liquidation_threshold, liquidation_bonus)
		VALUES ($1, $2, $3, $4, $5)`)
	if err != nil {
		return fmt.Errorf("failed to prepare emode insert: %w", err)
	}
	defer emodeStmt.Close()
	for _, c := range emodes {
		if _, err := emodeStmt.ExecContext(ctx, c.ID, c.Label, c.LTV, c.LiquidationThreshold, c.LiquidationBonus); err != nil {
			return fmt.Errorf("failed to insert emode category %d: %w", c.ID, err)
		}
	}

	userStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO users (user_address, user_emode_category, total_debt_usd, total_collateral_usd)
		VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return fmt.Errorf("failed to prepare user insert: %w", err)
	}
	defer userStmt.Close()

	posStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO positions (
			user_address, symbol, side, amount, amount_usd,
			liquidation_threshold, usage_as_collateral_enabled, emode_category_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`)
	if err != nil {
		return fmt.Errorf("failed to prepare position insert: %w", err)
	}
	defer posStmt.Close()

	for _, u := range users {
		var debtUSD, collUSD float64
		for _, p := range u.Debt {
			debtUSD += p.AmountUSD
		}
		for _, p := range u.Collateral {
			collUSD += p.AmountUSD
		}
		if _, err := userStmt.ExecContext(ctx, u.Address, u.EModeCategoryID, debtUSD, collUSD); err != nil {
			return fmt.Errorf("failed to insert user %s: %w", u.Address, err)
		}
		for _, p := range append(append([]domain.Position(nil), u.Collateral...), u.Debt...) {
			_, err := posStmt.ExecContext(ctx,
				p.UserAddress, p.Symbol, string(p.Side), p.Amount, p.AmountUSD,
				p.LiquidationThreshold, p.CollateralEnabled, p.EModeCategoryID)
			if err != nil {
				return fmt.Errorf("failed to insert position %s/%s: %w", p.UserAddress, p.Symbol, err)
			}
		}
	}
	return tx.Commit()
}
