package data

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func subgraphUserJSON(id string, emode int) map[string]any {
	user := map[string]any{
		"id": id,
		"reserves": []map[string]any{
			{
				"usageAsCollateralEnabledOnUser": true,
				"currentATokenBalance":           "2000000000000000000", // 2 WETH
				"currentVariableDebt":            "0",
				"currentStableDebt":              "0",
				"reserve": map[string]any{
					"symbol":                      "WETH",
					"decimals":                    18,
					"reserveLiquidationThreshold": "8300",
					"usageAsCollateralEnabled":    true,
					"eMode": map[string]any{
						"id":                   "1",
						"label":                "ETH correlated",
						"ltv":                  "9000",
						"liquidationThreshold": "9300",
						"liquidationBonus":     "10100",
					},
				},
			},
			{
				"usageAsCollateralEnabledOnUser": false,
				"currentATokenBalance":           "0",
				"currentVariableDebt":            "1500000000", // 1500 USDC
				"currentStableDebt":              "500000000",  // 500 USDC
				"reserve": map[string]any{
					"symbol":                      "USDC",
					"decimals":                    6,
					"reserveLiquidationThreshold": "7800",
					"usageAsCollateralEnabled":    true,
				},
			},
		},
	}
	if emode > 0 {
		user["eModeCategoryId"] = map[string]any{"id": fmt.Sprintf("%d", emode)}
	}
	return user
}

func subgraphServer(t *testing.T, pages [][]map[string]any) *SubgraphClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Variables struct {
				Skip  int `json:"skip"`
				First int `json:"first"`
			} `json:"variables"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		page := req.Variables.Skip / req.Variables.First
		users := []map[string]any{}
		if page < len(pages) {
			users = pages[page]
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"users": users},
		})
	}))
	t.Cleanup(srv.Close)

	return NewSubgraphClient(SubgraphConfig{
		URL:       srv.URL,
		BatchSize: 2,
		Timeout:   time.Second,
	}, zerolog.Nop(), nil)
}

func TestFetchPortfolioNormalizesPositions(t *testing.T) {
	client := subgraphServer(t, [][]map[string]any{
		{subgraphUserJSON("0x1", 1)},
	})

	prices := map[string]float64{"WETH": 3000, "USDC": 1}
	users, emodes, err := client.FetchPortfolio(context.Background(), prices)
	require.NoError(t, err)
	require.Len(t, users, 1)

	u := users[0]
	assert.Equal(t, "0x1", u.Address)
	assert.Equal(t, 1, u.EModeCategoryID)

	require.Len(t, u.Collateral, 1)
	weth := u.Collateral[0]
	assert.Equal(t, 2.0, weth.Amount)
	assert.Equal(t, 6000.0, weth.AmountUSD)
	assert.InDelta(t, 0.83, weth.LiquidationThreshold, 1e-12)
	assert.True(t, weth.CollateralEnabled)
	assert.Equal(t, 1, weth.EModeCategoryID)

	require.Len(t, u.Debt, 1)
	usdc := u.Debt[0]
	assert.Equal(t, 2000.0, usdc.Amount) // variable + stable
	assert.Equal(t, 2000.0, usdc.AmountUSD)

	require.Len(t, emodes, 1)
	assert.Equal(t, 1, emodes[0].ID)
	assert.InDelta(t, 0.93, emodes[0].LiquidationThreshold, 1e-12)
	assert.Equal(t, "ETH correlated", emodes[0].Label)
}

func TestFetchPortfolioPaginates(t *testing.T) {
	client := subgraphServer(t, [][]map[string]any{
		{subgraphUserJSON("0x1", 0), subgraphUserJSON("0x2", 1)},
		{subgraphUserJSON("0x3", 0)},
	})

	users, _, err := client.FetchPortfolio(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "0x1", users[0].Address)
	assert.Equal(t, "0x3", users[2].Address)
	assert.Equal(t, 0, users[0].EModeCategoryID)
}

func TestFetchPortfolioDisabledCollateralFlag(t *testing.T) {
	user := subgraphUserJSON("0x1", 0)
	reserves := user["reserves"].([]map[string]any)
	reserves[0]["usageAsCollateralEnabledOnUser"] = false

	client := subgraphServer(t, [][]map[string]any{{user}})
	users, _, err := client.FetchPortfolio(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Len(t, users[0].Collateral, 1)
	assert.False(t, users[0].Collateral[0].CollateralEnabled)
}

func TestFetchPortfolioSubgraphErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]any{{"message": "indexing in progress"}},
		})
	}))
	t.Cleanup(srv.Close)
	client := NewSubgraphClient(SubgraphConfig{URL: srv.URL}, zerolog.Nop(), nil)

	_, _, err := client.FetchPortfolio(context.Background(), nil)
	assert.ErrorContains(t, err, "indexing in progress")
}

func TestFetchPortfolioRequiresURL(t *testing.T) {
	client := NewSubgraphClient(SubgraphConfig{}, zerolog.Nop(), nil)
	_, _, err := client.FetchPortfolio(context.Background(), nil)
	assert.ErrorContains(t, err, "not configured")
}
