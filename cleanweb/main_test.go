package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	settings := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(settings, []byte("debug: false\n"), 0644))

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{args[0], "--settings", settings}, args[1:]...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCleanArgs(t *testing.T) {
	rules := filepath.Join(t.TempDir(), "config.csv")
	out, err := execute(t, "", "clean", "--rules", rules,
		"https://twitter.com/u/status?t=abc&s=1&id=5",
		"https://example.com/?keep=1")
	require.NoError(t, err)
	assert.Equal(t, "https://twitter.com/u/status?id=5\nhttps://example.com/?keep=1\n", out)
}

func TestCleanStdin(t *testing.T) {
	rules := filepath.Join(t.TempDir(), "config.csv")
	require.NoError(t, os.WriteFile(rules, []byte(".*,^ref$\n"), 0644))

	out, err := execute(t, "https://x.com/?ref=1&a=2\nplain text\n", "clean", "--rules", rules)
	require.NoError(t, err)
	assert.Equal(t, "https://x.com/?a=2\nplain text\n", out)
}

func TestFoldHostCaseFlag(t *testing.T) {
	rules := filepath.Join(t.TempDir(), "config.csv")
	require.NoError(t, os.WriteFile(rules, []byte("^x\\.com$,^t$\n"), 0644))

	out, err := execute(t, "", "clean", "--rules", rules, "--fold-host-case=false", "https://X.com/?t=1")
	require.NoError(t, err)
	assert.Equal(t, "https://X.com/?t=1\n", out)

	out, err = execute(t, "", "clean", "--rules", rules, "https://X.com/?t=1")
	require.NoError(t, err)
	assert.Equal(t, "https://X.com/\n", out)
}

func TestPrintRules(t *testing.T) {
	rules := filepath.Join(t.TempDir(), "config.csv")
	out, err := execute(t, "", "rules", "--rules", rules)
	require.NoError(t, err)
	assert.Equal(t, "# "+rules+"\n(^|\\.)twitter\\.com$,^(t|s)$\n.*,^utm_\n", out)
}

func TestInvalidRulesFail(t *testing.T) {
	rules := filepath.Join(t.TempDir(), "config.csv")
	require.NoError(t, os.WriteFile(rules, []byte("(,a\n"), 0644))

	_, err := execute(t, "", "clean", "--rules", rules, "https://x.com/")
	assert.Error(t, err)
}
