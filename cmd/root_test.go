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

	expected := []string{"build", "lookup", "geocode", "match", "validate", "serve", "download", "export", "status"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "geolookup", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)

	for _, name := range []string{"db", "json"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), "root should have --%s flag", name)
	}
}

func TestBuildCommand_Flags(t *testing.T) {
	for _, name := range []string{"out", "jurisdiction", "speed-table", "grid-size", "procs", "concurrency", "publish"} {
		assert.NotNil(t, buildCmd.Flags().Lookup(name), "build should have --%s flag", name)
	}
	assert.Equal(t, "o", buildCmd.Flags().Lookup("out").Shorthand)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestExportCommand_Flags(t *testing.T) {
	flag := exportCmd.Flags().Lookup("format")
	require.NotNil(t, flag)
	assert.Equal(t, "geojson", flag.DefValue)
	assert.NotNil(t, exportCmd.Flags().Lookup("kind"))
}

func TestPositionalArgs(t *testing.T) {
	assert.Error(t, lookupCmd.Args(lookupCmd, []string{"-33.9"}))
	assert.NoError(t, lookupCmd.Args(lookupCmd, []string{"-33.9", "18.4"}))
	assert.Error(t, matchCmd.Args(matchCmd, []string{"-33.9", "18.4"}))
	assert.Error(t, buildCmd.Args(buildCmd, nil))
	assert.Error(t, downloadCmd.Args(downloadCmd, nil))
}
