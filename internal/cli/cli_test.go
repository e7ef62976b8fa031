package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/auth"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/model"
)

const testSecret = "cli-test-secret"

func writeConfig(t *testing.T, driver string) string {
	t.Helper()
	t.Setenv("JWT_SECRET", "")
	t.Setenv("STORE_DRIVER", "")

	dir := t.TempDir()
	base := "store:\n  driver: " + driver + "\njwt:\n  secret: " + testSecret + "\n  issuer: nexus-test\n  ttl: 2h\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.yaml"), []byte(base), 0o600))
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "nexusctl", cmd.Use)

	for _, path := range [][]string{{"token", "issue"}, {"outbox", "replay"}, {"migrate"}} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err, "command %v should exist", path)
		assert.Equal(t, path[len(path)-1], sub.Name())
	}

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	dir := writeConfig(t, "memory")
	_, err := execute(t, "--config-dir", dir, "--format", "xml", "token", "issue", "--sub", "u1", "--role", "trainee")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, ExitCode(err))
}

func TestTokenIssue(t *testing.T) {
	dir := writeConfig(t, "memory")

	out, err := execute(t, "--config-dir", dir, "token", "issue", "--sub", "sup-1", "--role", "supervisor", "--name", "Dr. Ada")
	require.NoError(t, err)

	tokens := auth.NewTokens(testSecret, "nexus-test", time.Hour)
	actor, err := tokens.Parse(string(bytes.TrimSpace([]byte(out))))
	require.NoError(t, err)
	assert.Equal(t, "sup-1", actor.ID)
	assert.Equal(t, model.RoleSupervisor, actor.Role)
	assert.Equal(t, "Dr. Ada", actor.Name)
}

func TestTokenIssueJSON(t *testing.T) {
	dir := writeConfig(t, "memory")

	out, err := execute(t, "--config-dir", dir, "--format", "json", "token", "issue", "--sub", "tr-7", "--role", "trainee", "--ttl", "30m")
	require.NoError(t, err)

	var res tokenIssueResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "tr-7", res.Subject)
	assert.Equal(t, "trainee", res.Role)
	assert.NotEmpty(t, res.Token)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), res.ExpiresAt, time.Minute)
}

func TestTokenIssueRejectsUnknownRole(t *testing.T) {
	dir := writeConfig(t, "memory")
	_, err := execute(t, "--config-dir", dir, "token", "issue", "--sub", "x", "--role", "admin")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, ExitCode(err))
}

func TestTokenIssueRequiresFlags(t *testing.T) {
	dir := writeConfig(t, "memory")
	_, err := execute(t, "--config-dir", dir, "token", "issue", "--role", "trainee")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sub")
}

func TestTokenIssueMissingConfig(t *testing.T) {
	_, err := execute(t, "--config-dir", t.TempDir(), "token", "issue", "--sub", "u1", "--role", "trainee")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, ExitCode(err))
}

func TestOutboxReplayFlagValidation(t *testing.T) {
	dir := writeConfig(t, "postgres")

	tests := []struct {
		name string
		args []string
	}{
		{"neither", nil},
		{"both", []string{"--id", "3", "--failed"}},
		{"non-positive id", []string{"--id", "0"}},
		{"non-positive limit", []string{"--failed", "--limit", "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--config-dir", dir, "outbox", "replay"}, tt.args...)
			_, err := execute(t, args...)
			require.Error(t, err)
		})
	}
}

func TestMigrateRequiresPostgres(t *testing.T) {
	dir := writeConfig(t, "memory")
	_, err := execute(t, "--config-dir", dir, "migrate")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, ExitCode(err))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, ExitCode(nil))
	assert.Equal(t, ExitFailure, ExitCode(assert.AnError))
	assert.Equal(t, ExitCommandError, ExitCode(wrapExitError(ExitCommandError, "bad", nil)))
}
