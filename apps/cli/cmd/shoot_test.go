package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teamchat/docshots/packages/output"
	"github.com/teamchat/docshots/packages/registry"
)

// newShootTestCmd rebinds the shoot flags onto a fresh command, which
// resets the flag variables and their changed state between tests.
func newShootTestCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "shoot"}
	registerShootFlags(cmd)
	return cmd
}

func testFormatter(buf *bytes.Buffer) *output.ConsoleFormatter {
	return output.NewConsoleFormatter(output.WithWriter(buf), output.WithNoColor(true))
}

func itemNames(items []item) []string {
	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, it.integration.Name)
	}
	return names
}

func TestSelectItems_SkipUntil(t *testing.T) {
	cmd := newShootTestCmd()
	require.NoError(t, cmd.Flags().Set("skip-until", "pagerduty"))

	var buf bytes.Buffer
	items, err := selectItems(cmd, registry.Builtin(), nil, testFormatter(&buf))
	require.NoError(t, err)

	// The catalog is ordered by name; everything before pagerduty is skipped.
	assert.Equal(t, []string{"pagerduty", "sentry", "slack"}, itemNames(items))
	assert.Empty(t, buf.String())
}

func TestSelectItems_SkipUntilIgnoresOverrides(t *testing.T) {
	cmd := newShootTestCmd()
	require.NoError(t, cmd.Flags().Set("skip-until", "sentry"))
	require.NoError(t, cmd.Flags().Set("use-basic-auth", "true"))
	require.NoError(t, cmd.Flags().Set("extra-params", `{"topic": "x"}`))

	var buf bytes.Buffer
	items, err := selectItems(cmd, registry.Builtin(), nil, testFormatter(&buf))
	require.NoError(t, err)
	require.NotEmpty(t, items)

	// Batch modes run catalog defaults; the override flags are dropped with
	// a single warning.
	for _, it := range items {
		assert.False(t, it.cfg.UseBasicAuth)
		assert.Empty(t, it.cfg.ExtraParams)
	}
	assert.Equal(t, 1, strings.Count(buf.String(), "Warning:"))
	assert.Contains(t, buf.String(), "catalog defaults")
}

func TestSelectItems_All(t *testing.T) {
	cmd := newShootTestCmd()
	require.NoError(t, cmd.Flags().Set("all", "true"))

	var buf bytes.Buffer
	items, err := selectItems(cmd, registry.Builtin(), nil, testFormatter(&buf))
	require.NoError(t, err)
	assert.Len(t, items, registry.Builtin().Len())
}

func TestSelectItems_ModeRequired(t *testing.T) {
	var buf bytes.Buffer
	_, err := selectItems(newShootTestCmd(), registry.Builtin(), nil, testFormatter(&buf))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "selection mode")
}

func TestSelectItems_ModesMutuallyExclusive(t *testing.T) {
	cmd := newShootTestCmd()
	require.NoError(t, cmd.Flags().Set("all", "true"))
	require.NoError(t, cmd.Flags().Set("skip-until", "github"))

	var buf bytes.Buffer
	_, err := selectItems(cmd, registry.Builtin(), nil, testFormatter(&buf))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "selection mode")
}

func TestSelectItems_FixtureNeedsExactlyOneName(t *testing.T) {
	cmd := newShootTestCmd()
	require.NoError(t, cmd.Flags().Set("fixture", "ping.json"))

	var buf bytes.Buffer
	_, err := selectItems(cmd, registry.Builtin(), []string{"github", "gitlab"}, testFormatter(&buf))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one integration")
}

func TestSelectItems_NamedWithOverrides(t *testing.T) {
	cmd := newShootTestCmd()
	require.NoError(t, cmd.Flags().Set("fixture", "ping__zen.json"))
	require.NoError(t, cmd.Flags().Set("use-basic-auth", "true"))
	require.NoError(t, cmd.Flags().Set("extra-params", `{"topic": "alerts"}`))

	var buf bytes.Buffer
	items, err := selectItems(cmd, registry.Builtin(), []string{"github"}, testFormatter(&buf))
	require.NoError(t, err)
	require.Len(t, items, 1)

	cfg := items[0].cfg
	assert.Equal(t, "ping__zen.json", cfg.FixtureName)
	assert.True(t, cfg.UseBasicAuth)
	assert.Equal(t, "alerts", cfg.ExtraParams["topic"])
	assert.Empty(t, buf.String())
}

func TestSelectItems_UnknownIntegration(t *testing.T) {
	var buf bytes.Buffer
	_, err := selectItems(newShootTestCmd(), registry.Builtin(), []string{"nope"}, testFormatter(&buf))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown integration")
}
