package e2e_test

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/api"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/factory"
)

// cliRunner manages CLI binary execution
type cliRunner struct {
	binaryPath  string
	serverURL   string
	sessionFile string
	transport   string
}

func newCLIRunner(t *testing.T, serverURL string) *cliRunner {
	t.Helper()

	// Find project root (where go.mod is)
	projectRoot := findProjectRoot(t)

	// Build the CLI binary
	binaryPath := filepath.Join(t.TempDir(), "snl-test")
	cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/snl")
	cmd.Dir = projectRoot
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "failed to build CLI: %s", string(output))

	return &cliRunner{
		binaryPath:  binaryPath,
		serverURL:   serverURL,
		sessionFile: filepath.Join(t.TempDir(), "session.json"),
		transport:   "socket",
	}
}

// as returns a runner for another player sharing the same binary
func (r *cliRunner) as(t *testing.T, name string) *cliRunner {
	return &cliRunner{
		binaryPath:  r.binaryPath,
		serverURL:   r.serverURL,
		sessionFile: filepath.Join(t.TempDir(), name+".json"),
		transport:   r.transport,
	}
}

func (r *cliRunner) run(args ...string) (string, error) {
	fullArgs := append([]string{
		"--server", r.serverURL,
		"--session-file", r.sessionFile,
		"--transport", r.transport,
		"--output", "json",
	}, args...)

	cmd := exec.Command(r.binaryPath, fullArgs...)
	// Stderr is kept apart from the JSON and lands in the *exec.ExitError
	output, err := cmd.Output()
	return string(output), err
}

func findProjectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	require.NoError(t, err)

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (go.mod)")
		}
		dir = parent
	}
}

// testServer manages a real HTTP server for e2e tests
type testServer struct {
	app      *factory.App
	addr     string
	shutdown func()
}

func startTestServer(t *testing.T) *testServer {
	return startTestServerWithConfig(t, factory.Config{})
}

func startTestServerWithConfig(t *testing.T, cfg factory.Config) *testServer {
	t.Helper()

	// Listen on a free port
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}
	app, err := factory.New(cfg)
	require.NoError(t, err)

	serverCfg := api.DefaultServerConfig()
	serverCfg.ShutdownTimeout = 5 * time.Second
	server := api.NewServer(app.Handler(), serverCfg, cfg.Logger)
	server.OnShutdown(app.Poll.Close)

	ctx, cancel := context.WithCancel(context.Background())
	go app.Run(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := server.Serve(ctx, listener); err != nil {
			t.Logf("server error: %v", err)
		}
	}()

	// Wait for server to be ready
	serverURL := "http://" + listener.Addr().String()
	waitForServer(t, serverURL+"/api/v1/health")

	return &testServer{
		app:  app,
		addr: serverURL,
		shutdown: func() {
			cancel()
			<-done
			_ = app.Close()
		},
	}
}

func waitForServer(t *testing.T, url string) {
	t.Helper()

	client := &http.Client{Timeout: 100 * time.Millisecond}
	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}

	t.Fatal("server did not become ready in time")
}
