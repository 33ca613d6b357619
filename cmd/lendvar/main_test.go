package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defirisk/lendvar/internal/metrics"
)

func TestNewRootCmdWiresSubcommands(t *testing.T) {
	root := newRootCmd(metrics.NewRegistry())

	names := make(map[string]bool)
	for _, sub := range root.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"prices", "positions", "simulate", "report", "serve"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}

	require.NotNil(t, root.PersistentFlags().Lookup("config"))
	require.NotNil(t, root.PersistentFlags().Lookup("debug"))
}
