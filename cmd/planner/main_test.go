package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/glr76/PlannyWeb/internal/auth"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestHashPasswordFromArgument(t *testing.T) {
	out, err := run(t, "", "hash-password", "s3cret")
	require.NoError(t, err)
	hash := strings.TrimSpace(out)
	require.True(t, strings.HasPrefix(hash, "$argon2id$"))
	require.True(t, auth.VerifyPassword("s3cret", hash))
}

func TestHashPasswordFromStdin(t *testing.T) {
	out, err := run(t, "from-stdin\n", "hash-password")
	require.NoError(t, err)
	require.True(t, auth.VerifyPassword("from-stdin", strings.TrimSpace(out)))

	_, err = run(t, "", "hash-password")
	require.Error(t, err)
}

func TestConfigPrintsMaskedSettings(t *testing.T) {
	t.Setenv("PLANNER_BACKEND_KIND", "github")
	t.Setenv("GITHUB_REPO", "acme/planner")
	t.Setenv("GITHUB_TOKEN", "ghp_verysecrettoken")
	out, err := run(t, "", "config", "--env-file", filepath.Join("testdata", "empty.env"))
	require.NoError(t, err)
	require.Contains(t, out, "GitHubRepo: acme/planner")
	require.Contains(t, out, "GitHubToken: ********")
	require.NotContains(t, out, "ghp_verysecrettoken")
}

func TestServeRejectsArgs(t *testing.T) {
	_, err := run(t, "", "serve", "extra")
	require.Error(t, err)
}
