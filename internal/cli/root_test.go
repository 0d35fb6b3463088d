package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestRulesImportThenList(t *testing.T) {
	dir := t.TempDir()
	storeDir := filepath.Join(dir, "store")
	noConfig := filepath.Join(dir, "missing.yaml")
	rulesFile := writeFile(t, dir, "rules.yaml", `
- source: /old-page
  destination: /new-page
  statusCode: "301"
- source: /promo
  destination: https://shop.example.com/sale
  statusCode: "302"
  openInNewTab: true
`)

	out, err := runCmd(t, "--config", noConfig, "rules", "import", rulesFile, "--store-path", storeDir)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 2 rules into \"redirects\"")

	out, err = runCmd(t, "--config", noConfig, "rules", "list", "--store-path", storeDir)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "SOURCE")
	assert.Contains(t, lines[1], "/old-page")
	assert.Contains(t, lines[1], "301")
	assert.Contains(t, lines[2], "/promo")
	assert.Contains(t, lines[2], "true")
}

func TestRulesImport_UsesConfiguredStore(t *testing.T) {
	dir := t.TempDir()
	cfgFile := writeFile(t, dir, "reroute.yaml", "store:\n  path: "+filepath.Join(dir, "db")+"\n  collection: site\n")
	rulesFile := writeFile(t, dir, "rules.yaml", "- source: /a\n  destination: /b\n  statusCode: \"302\"\n")

	out, err := runCmd(t, "--config", cfgFile, "rules", "import", rulesFile)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 1 rules into \"site\"")
}

func TestRulesList_NotConfigured(t *testing.T) {
	dir := t.TempDir()
	_, err := runCmd(t, "--config", filepath.Join(dir, "missing.yaml"), "rules", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestRulesImport_BadFile(t *testing.T) {
	dir := t.TempDir()
	rulesFile := writeFile(t, dir, "rules.yaml", "source: [")

	_, err := runCmd(t, "--config", filepath.Join(dir, "missing.yaml"), "rules", "import", rulesFile, "--store-path", filepath.Join(dir, "db"))
	assert.Error(t, err)
}

func TestServe_RequiresConfigFile(t *testing.T) {
	_, err := runCmd(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestServe_RequiresOrigin(t *testing.T) {
	dir := t.TempDir()
	cfgFile := writeFile(t, dir, "reroute.yaml", "server:\n  port: 0\n")

	_, err := runCmd(t, "--config", cfgFile, "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.origin is required")
}

func TestNewLogger_RejectsUnknownLevel(t *testing.T) {
	_, err := newLogger("chatty")
	assert.Error(t, err)

	l, err := newLogger("debug")
	require.NoError(t, err)
	assert.NotNil(t, l)
}
