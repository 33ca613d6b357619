package report

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defirisk/lendvar/internal/persistence"
)

func TestUSDFormatting(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "$0.00"},
		{25, "$25.00"},
		{1500, "$1,500.00"},
		{1234567.891, "$1,234,567.89"},
		{-42000, "-$42,000.00"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, usd(tc.in), "usd(%g)", tc.in)
	}
}

func TestWriteRunContainsKeyFigures(t *testing.T) {
	started := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	rec := &persistence.RunRecord{
		RunID:      uuid.New(),
		NScenarios: 10000,
		NUsers:     1000,
		Seed:       42,
		State:      "COMPLETE",
		VaR95:      120000,
		VaR99:      310000,
		VaR999:     560000,
		ES95:       205000,
		ES99:       420000,
		MeanLoss:   8000,
		ProbOfLoss: 0.123,
		StartedAt:  started,
		FinishedAt: started.Add(90 * time.Second),
	}

	var sb strings.Builder
	require.NoError(t, WriteRun(&sb, rec))
	out := sb.String()

	assert.Contains(t, out, rec.RunID.String())
	assert.Contains(t, out, "Scenarios:   10000")
	assert.Contains(t, out, "$120,000.00")
	assert.Contains(t, out, "$310,000.00")
	assert.Contains(t, out, "$560,000.00")
	assert.Contains(t, out, "12.3%")
	assert.Contains(t, out, "(90.0s)")
}

func TestWriteRunList(t *testing.T) {
	recs := []persistence.RunRecord{
		{RunID: uuid.New(), State: "COMPLETE", NScenarios: 1000, NUsers: 50, VaR99: 31000},
		{RunID: uuid.New(), State: "FAILED", NScenarios: 500, NUsers: 50},
	}

	var sb strings.Builder
	require.NoError(t, WriteRunList(&sb, recs))
	out := sb.String()

	assert.Contains(t, out, "RUN ID")
	assert.Contains(t, out, recs[0].RunID.String())
	assert.Contains(t, out, "FAILED")
	// Unfinished runs show a dash instead of a timestamp.
	assert.Contains(t, out, "-")
}
