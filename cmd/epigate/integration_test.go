//go:build integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"
)

// TestServerRoundTrip builds the binary, starts `epigate run`, drives the
// HTTP API and checks that state survives a restart.
func TestServerRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	tmpDir := t.TempDir()
	addr := freeAddr(t)
	configFile := filepath.Join(tmpDir, "config.yaml")
	writeFile(t, configFile, fmt.Sprintf(`
server:
  listen_address: %q
gate:
  denylist: ["hack"]
  seed_rules:
    - {sector: HAVACILIK, threshold: 0.5, keyword: basınç, unit: psi}
storage:
  backend: sqlite
  sqlite:
    path: %q
telemetry:
  logging:
    level: info
    format: json
  metrics:
    enabled: true
`, addr, filepath.Join(tmpDir, "epigate.db")))

	binaryPath := buildBinary(t, tmpDir)
	base := "http://" + addr

	stop := startServer(t, binaryPath, configFile, base)
	verify(t, base, "HAVACILIK", "Basınç 0.8 psi", "BLOCKED")
	verify(t, base, "havacilik", "Basınç 0.3 psi", "SUCCESS")
	verify(t, base, "HAVACILIK", "hack the system, basınç 0.1 psi", "BLOCKED")
	stop()

	stop = startServer(t, binaryPath, configFile, base)
	defer stop()

	resp, err := http.Get(base + "/api/v1/dashboard")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var d struct {
		Counters struct {
			Total int64 `json:"TOTAL"`
			Pass  int64 `json:"PASS"`
			Block int64 `json:"BLOCK"`
		} `json:"counters"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		t.Fatal(err)
	}
	if d.Counters.Total != 3 || d.Counters.Pass != 1 || d.Counters.Block != 2 {
		t.Errorf("counters after restart = %+v", d.Counters)
	}
}

func verify(t *testing.T, base, sector, message, want string) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"sector": sector, "message": message})
	resp, err := http.Post(base+"/verify", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /verify: %v", err)
	}
	defer resp.Body.Close()

	var out struct {
		Decision string `json:"decision"`
		Feedback string `json:"feedback"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Decision != want {
		t.Errorf("verify(%q, %q) = %s (%s), want %s", sector, message, out.Decision, out.Feedback, want)
	}
}

func startServer(t *testing.T, binaryPath, configFile, base string) func() {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	cmd := exec.CommandContext(ctx, binaryPath, "run", "--config", configFile)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		cancel()
		t.Fatalf("failed to start server: %v", err)
	}

	if !waitForHealthy(base+"/ready", 10*time.Second) {
		cmd.Process.Kill()
		cancel()
		t.Fatalf("server did not become ready\nstderr: %s", stderr.String())
	}

	return func() {
		defer cancel()
		_ = cmd.Process.Signal(syscall.SIGTERM)
		if err := cmd.Wait(); err != nil {
			t.Errorf("server exited with %v\nstderr: %s", err, stderr.String())
		}
	}
}

func buildBinary(t *testing.T, dir string) string {
	t.Helper()
	binaryPath := filepath.Join(dir, "epigate")
	cmd := exec.Command("go", "build", "-o", binaryPath, ".")
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to build epigate: %v\nOutput: %s", err, output)
	}
	return binaryPath
}

// waitForHealthy waits for a health endpoint to return 200
func waitForHealthy(url string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 1 * time.Second}

	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return true
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	return ln.Addr().String()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}
