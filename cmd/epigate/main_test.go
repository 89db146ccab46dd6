package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/epigate/pkg/audit"
	"mercator-hq/epigate/pkg/cli"
	"mercator-hq/epigate/pkg/policy"
)

// writeConfig writes a config using a fresh SQLite database and the
// HAVACILIK seed rule.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	cfg := `server:
  listen_address: "127.0.0.1:0"
gate:
  denylist: ["hack"]
  seed_rules:
    - sector: havacilik
      threshold: 0.5
      keyword: Basınç
      unit: psi
storage:
  backend: sqlite
  sqlite:
    path: ` + filepath.Join(dir, "epigate.db") + `
audit:
  integrity_schedule: ""
telemetry:
  logging:
    level: warn
` + extra
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func execute(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	if ctx == nil {
		ctx = context.Background()
	}
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, nil, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Epigate "+Version)
	assert.Contains(t, out, "Go Version:")
}

func TestValidateCommand(t *testing.T) {
	cfgPath := writeConfig(t, "")

	out, err := execute(t, nil, "validate", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid")
	assert.Contains(t, out, "Seed rules: 1")

	rules := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(rules, []byte("rules:\n  - sector: x\n    threshold: 1\n    keyword: \"\"\n"), 0o600))
	_, err = execute(t, nil, "validate", "--config", cfgPath, "--rules", rules)
	require.Error(t, err)
	assert.Equal(t, cli.ExitConfig, cli.ExitCode(err))

	_, err = execute(t, nil, "validate", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, cli.ExitConfig, cli.ExitCode(err))
}

func TestEvaluateCommand(t *testing.T) {
	cfgPath := writeConfig(t, "")

	out, err := execute(t, nil, "evaluate", "-c", cfgPath, "--sector", "HAVACILIK", "--message", "Basınç 0.8 psi")
	require.NoError(t, err)
	assert.Contains(t, out, "BLOCKED (EXCEED)")
	assert.Contains(t, out, "0.3")

	out, err = execute(t, nil, "evaluate", "-c", cfgPath, "-s", "havacilik", "-o", "json", "Basınç", "0.3", "psi")
	require.NoError(t, err)
	var res struct {
		Decision string `json:"decision"`
		RecordID int64  `json:"record_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "SUCCESS", res.Decision)
	assert.Equal(t, int64(2), res.RecordID)

	_, err = execute(t, nil, "evaluate", "-c", cfgPath, "-s", "HAVACILIK", "--fail-on-block", "-m", "hack the system, basınç 0.1 psi")
	require.ErrorIs(t, err, cli.ErrBlocked)
	assert.Equal(t, cli.ExitBlocked, cli.ExitCode(err))

	out, err = execute(t, nil, "audit", "stats", "-c", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "TOTAL=3 PASS=1 BLOCK=2\n", out)
}

func TestEvaluateCommand_RequiresMessage(t *testing.T) {
	cfgPath := writeConfig(t, "")
	_, err := execute(t, nil, "evaluate", "-c", cfgPath, "-s", "HAVACILIK")
	require.Error(t, err)
}

func TestRuleCommands(t *testing.T) {
	cfgPath := writeConfig(t, "")

	out, err := execute(t, nil, "rule", "define", "-c", cfgPath,
		"--sector", "enerji", "--threshold", "220", "--keyword", "Voltaj", "--unit", "V")
	require.NoError(t, err)
	assert.Contains(t, out, "ENERJI")

	_, err = execute(t, nil, "rule", "define", "-c", cfgPath,
		"--sector", "enerji", "--threshold", "NaN", "--keyword", "v")
	require.ErrorIs(t, err, policy.ErrInvalidInput)

	out, err = execute(t, nil, "rule", "list", "-c", cfgPath, "-o", "csv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "SECTOR,THRESHOLD,UNIT,KEYWORD,UPDATED", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "ENERJI,220,V,voltaj,"), lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "HAVACILIK,0.5,psi,basınç,"), lines[2])
}

func TestSeedRulesDoNotOverrideStoredRules(t *testing.T) {
	cfgPath := writeConfig(t, "")

	_, err := execute(t, nil, "rule", "define", "-c", cfgPath,
		"--sector", "HAVACILIK", "--threshold", "1.5", "--keyword", "basınç", "--unit", "psi")
	require.NoError(t, err)

	// The next bootstrap runs the seeding again.
	out, err := execute(t, nil, "evaluate", "-c", cfgPath, "-s", "HAVACILIK", "-m", "basınç 0.8 psi")
	require.NoError(t, err)
	assert.Contains(t, out, "SUCCESS")
}

func TestRulesFileApplied(t *testing.T) {
	rules := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(rules, []byte("rules:\n  - sector: denizcilik\n    threshold: 30\n    keyword: derinlik\n    unit: m\n"), 0o600))
	cfgPath := writeConfig(t, "")
	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	cfg := strings.Replace(string(data), "gate:\n", "gate:\n  rules_file: "+rules+"\n", 1)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))

	out, err := execute(t, nil, "evaluate", "-c", cfgPath, "-s", "Denizcilik", "-m", "derinlik 45 m")
	require.NoError(t, err)
	assert.Contains(t, out, "BLOCKED (EXCEED)")
}

func TestRulesRepositoryApplied(t *testing.T) {
	source := t.TempDir()
	repo, err := gogit.PlainInitWithOptions(source, &gogit.PlainInitOptions{
		InitOptions: gogit.InitOptions{DefaultBranch: "refs/heads/main"},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(source, "rules.yaml"),
		[]byte("rules:\n  - {sector: enerji, threshold: 220, keyword: voltaj, unit: V}\n"), 0o644))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("rules.yaml")
	require.NoError(t, err)
	_, err = wt.Commit("add rules", &gogit.CommitOptions{
		Author: &object.Signature{Name: "Test User", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	cfgPath := writeConfig(t, "")
	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	clone := filepath.Join(t.TempDir(), "clone")
	cfg := strings.Replace(string(data), "gate:\n",
		"gate:\n  rules_git:\n    repository: "+source+"\n    local_path: "+clone+"\n", 1)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))

	out, err := execute(t, nil, "evaluate", "-c", cfgPath, "-s", "ENERJI", "-m", "voltaj 230 V")
	require.NoError(t, err)
	assert.Contains(t, out, "BLOCKED (EXCEED)")
	assert.FileExists(t, filepath.Join(clone, "rules.yaml"))

	// The existing clone is reused and pulled.
	out, err = execute(t, nil, "evaluate", "-c", cfgPath, "-s", "ENERJI", "-m", "voltaj 220 V")
	require.NoError(t, err)
	assert.Contains(t, out, "SUCCESS")
}

func TestAuditCommands(t *testing.T) {
	cfgPath := writeConfig(t, "")
	for _, msg := range []string{"basınç 0.1", "basınç 0.9", "no number basınç"} {
		_, err := execute(t, nil, "evaluate", "-c", cfgPath, "-s", "HAVACILIK", "-m", msg)
		require.NoError(t, err)
	}

	out, err := execute(t, nil, "audit", "recent", "-c", cfgPath, "-n", "2", "-o", "json")
	require.NoError(t, err)
	var records []audit.Record
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 2)
	assert.Equal(t, int64(3), records[0].ID)
	assert.Equal(t, "no number basınç", records[0].Message)

	out, err = execute(t, nil, "audit", "verify", "-c", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "ledger consistent: TOTAL=3 PASS=1 BLOCK=2 records=3\n", out)

	_, err = execute(t, nil, "audit", "stats", "-c", cfgPath, "-o", "yaml")
	require.Error(t, err)
}

func TestRunCommand(t *testing.T) {
	cfgPath := writeConfig(t, "")

	out, err := execute(t, nil, "run", "-c", cfgPath, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := execute(t, ctx, "run", "-c", cfgPath)
		done <- err
	}()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}
}

func TestRunCommand_ListenFailure(t *testing.T) {
	cfgPath := writeConfig(t, "")
	_, err := execute(t, nil, "run", "-c", cfgPath, "--listen", "127.0.0.1:notaport")
	require.Error(t, err)

	var cmdErr *cli.CommandError
	require.True(t, errors.As(err, &cmdErr), "got %T: %v", err, err)
	assert.Equal(t, cli.ExitError, cli.ExitCode(err))
}
