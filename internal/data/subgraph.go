package data

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/defirisk/lendvar/internal/domain"
	"github.com/defirisk/lendvar/internal/metrics"
)

// SubgraphConfig configures the portfolio snapshot feed.
type SubgraphConfig struct {
	URL       string
	BatchSize int
	Timeout   time.Duration
}

// SubgraphClient fetches the borrower book from an Aave-v3-style subgraph.
// The result is a fixed point-in-time snapshot: the engine never re-fetches
// mid-run.
type SubgraphClient struct {
	cfg  SubgraphConfig
	http *http.Client
	log  zerolog.Logger
	met  *metrics.Registry
}

// NewSubgraphClient builds a portfolio client. met may be nil.
func NewSubgraphClient(cfg SubgraphConfig, log zerolog.Logger, met *metrics.Registry) *SubgraphClient {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SubgraphClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log.With().Str("component", "subgraph").Logger(),
		met:  met,
	}
}

const usersQuery = `
query GetUsers($skip: Int!, $first: Int!) {
  users(
    skip: $skip
    first: $first
    where: { borrowedReservesCount_gt: 0 }
    orderBy: id
    orderDirection: asc
  ) {
    id
    eModeCategoryId { id }
    reserves {
      usageAsCollateralEnabledOnUser
      currentATokenBalance
      currentVariableDebt
      currentStableDebt
      reserve {
        symbol
        decimals
        reserveLiquidationThreshold
        usageAsCollateralEnabled
        eMode { id label ltv liquidationThreshold liquidationBonus }
      }
    }
  }
}`

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type usersResponse struct {
	Data struct {
		Users []subgraphUser `json:"users"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type subgraphUser struct {
	ID            string        `json:"id"`
	EModeCategory *idRef        `json:"eModeCategoryId"`
	Reserves      []userReserve `json:"reserves"`
}

type idRef struct {
	ID string `json:"id"`
}

type userReserve struct {
	UsageAsCollateralEnabledOnUser bool    `json:"usageAsCollateralEnabledOnUser"`
	CurrentATokenBalance           string  `json:"currentATokenBalance"`
	CurrentVariableDebt            string  `json:"currentVariableDebt"`
	CurrentStableDebt              string  `json:"currentStableDebt"`
	Reserve                        reserve `json:"reserve"`
}

type reserve struct {
	Symbol                      string `json:"symbol"`
	Decimals                    int    `json:"decimals"`
	ReserveLiquidationThreshold string `json:"reserveLiquidationThreshold"`
	UsageAsCollateralEnabled    bool   `json:"usageAsCollateralEnabled"`
	EMode                       *struct {
		ID                   string `json:"id"`
		Label                string `json:"label"`
		LTV                  string `json:"ltv"`
		LiquidationThreshold string `json:"liquidationThreshold"`
		LiquidationBonus     string `json:"liquidationBonus"`
	} `json:"eMode"`
}

// FetchPortfolio pages through all users with outstanding debt and
// normalizes them, together with every efficiency-mode category seen on
// their reserves, into the domain model. currentPrices values AmountUSD at
// snapshot time; unknown symbols value at zero (the solvency evaluator's
// fallback policy governs them at scoring time).
func (c *SubgraphClient) FetchPortfolio(ctx context.Context, currentPrices map[string]float64) ([]*domain.User, []domain.EModeCategory, error) {
	var users []*domain.User
	emodes := make(map[int]domain.EModeCategory)

	skip := 0
	for {
		batch, err := c.queryUsers(ctx, skip, c.cfg.BatchSize)
		if err != nil {
			c.observe("error")
			return nil, nil, err
		}
		c.observe("ok")
		if len(batch) == 0 {
			break
		}

		for _, su := range batch {
			u, cats := normalizeUser(su, currentPrices)
			users = append(users, u)
			for _, cat := range cats {
				emodes[cat.ID] = cat
			}
		}

		c.log.Debug().Int("fetched", len(users)).Msg("portfolio page fetched")
		skip += c.cfg.BatchSize
	}

	out := make([]domain.EModeCategory, 0, len(emodes))
	for _, cat := range emodes {
		out = append(out, cat)
	}
	c.log.Info().
		Int("users", len(users)).
		Int("emode_categories", len(out)).
		Msg("portfolio snapshot fetched")
	return users, out, nil
}

func (c *SubgraphClient) queryUsers(ctx context.Context, skip, first int) ([]subgraphUser, error) {
	if c.cfg.URL == "" {
		return nil, fmt.Errorf("subgraph URL not configured")
	}
	payload, err := json.Marshal(graphQLRequest{
		Query:     usersQuery,
		Variables: map[string]any{"skip": skip, "first": first},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("subgraph request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("subgraph returned %d: %s", resp.StatusCode, body)
	}

	var parsed usersResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode subgraph response: %w", err)
	}
	if len(parsed.Errors) > 0 {
		return nil, fmt.Errorf("subgraph errors: %s", parsed.Errors[0].Message)
	}
	return parsed.Data.Users, nil
}

func (c *SubgraphClient) observe(result string) {
	if c.met != nil {
		c.met.FeedRequests.WithLabelValues("subgraph", result).Inc()
	}
}

func normalizeUser(su subgraphUser, prices map[string]float64) (*domain.User, []domain.EModeCategory) {
	u := &domain.User{Address: su.ID}
	if su.EModeCategory != nil {
		u.EModeCategoryID = atoiOr(su.EModeCategory.ID, 0)
	}

	var cats []domain.EModeCategory
	for _, r := range su.Reserves {
		scale := math.Pow10(r.Reserve.Decimals)
		lt := atofOr(r.Reserve.ReserveLiquidationThreshold, 0) / 10000 // basis points
		price := prices[r.Reserve.Symbol]

		emodeID := 0
		if r.Reserve.EMode != nil {
			emodeID = atoiOr(r.Reserve.EMode.ID, 0)
			cats = append(cats, domain.EModeCategory{
				ID:                   emodeID,
				Label:                r.Reserve.EMode.Label,
				LTV:                  atofOr(r.Reserve.EMode.LTV, 0) / 10000,
				LiquidationThreshold: atofOr(r.Reserve.EMode.LiquidationThreshold, 0) / 10000,
				LiquidationBonus:     atofOr(r.Reserve.EMode.LiquidationBonus, 0) / 10000,
			})
		}

		if supplied := atofOr(r.CurrentATokenBalance, 0) / scale; supplied > 0 {
			u.Collateral = append(u.Collateral, domain.Position{
				UserAddress:          su.ID,
				Symbol:               r.Reserve.Symbol,
				Side:                 domain.SideCollateral,
				Amount:               supplied,
				AmountUSD:            supplied * price,
				LiquidationThreshold: lt,
				CollateralEnabled:    r.UsageAsCollateralEnabledOnUser && r.Reserve.UsageAsCollateralEnabled,
				EModeCategoryID:      emodeID,
			})
		}

		debt := (atofOr(r.CurrentVariableDebt, 0) + atofOr(r.CurrentStableDebt, 0)) / scale
		if debt > 0 {
			u.Debt = append(u.Debt, domain.Position{
				UserAddress:     su.ID,
				Symbol:          r.Reserve.Symbol,
				Side:            domain.SideDebt,
				Amount:          debt,
				AmountUSD:       debt * price,
				EModeCategoryID: emodeID,
			})
		}
	}
	return u, cats
}

func atoiOr(s string, def int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func atofOr(s string, def float64) float64 {
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}
