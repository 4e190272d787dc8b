package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"assess", "batch", "history", "serve", "cache", "financial"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "provider-risk", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
}

func TestAssessCommand_Flags(t *testing.T) {
	for _, name := range []string{"npi", "format", "no-report", "save"} {
		assert.NotNil(t, assessCmd.Flags().Lookup(name), "assess should have --%s flag", name)
	}
	assert.Equal(t, "text", assessCmd.Flags().Lookup("format").DefValue)
}

func TestBatchCommand_Flags(t *testing.T) {
	for _, name := range []string{"input", "output", "concurrency", "report", "no-save"} {
		assert.NotNil(t, batchCmd.Flags().Lookup(name), "batch should have --%s flag", name)
	}
	assert.Equal(t, "0", batchCmd.Flags().Lookup("concurrency").DefValue)
}

func TestHistoryCommand_Flags(t *testing.T) {
	flag := historyCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "50", flag.DefValue)

	names := make(map[string]bool)
	for _, c := range historyCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["show"])
	assert.Equal(t, "json", historyShowCmd.Flags().Lookup("format").DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestCacheCommand_HasPurge(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range cacheCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["purge"])
}
