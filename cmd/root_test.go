package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"run", "phase1", "phase2", "regions", "runs", "consolidate"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "schoolscrape", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRunCommand_Flags(t *testing.T) {
	for _, name := range []string{"region", "resume", "skip-phase2"} {
		require.NotNil(t, runCmd.Flags().Lookup(name), "run command should have --%s flag", name)
	}
	assert.Equal(t, "false", runCmd.Flags().Lookup("resume").DefValue)
}

func TestPhase2Command_Flags(t *testing.T) {
	for _, name := range []string{"region", "file", "resume"} {
		require.NotNil(t, phase2Cmd.Flags().Lookup(name), "phase2 command should have --%s flag", name)
	}
}

func TestPhase2Command_RequiresInput(t *testing.T) {
	phase2Region, phase2File = "", ""
	err := phase2Cmd.RunE(phase2Cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--region or --file")
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["list"])
	assert.True(t, names["show"])

	flag := runsListCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "50", flag.DefValue)
}
