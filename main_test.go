package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/dicerace/game/directory"
	"github.com/wricardo/dicerace/transport/mcp"
)

func TestConstants(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
	if AppName != "Dice Race Server" {
		t.Errorf("Expected app name Dice Race Server, got %s", AppName)
	}
}

func TestFlagDefaults(t *testing.T) {
	var got options
	app := newApp()
	app.Commands = nil
	app.DefaultCommand = ""
	app.Action = func(ctx context.Context, cmd *cli.Command) error {
		got = optionsFrom(cmd)
		return nil
	}

	if err := app.Run(context.Background(), []string{"dicerace"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got.port != defaultPort {
		t.Errorf("Expected default port %d, got %d", defaultPort, got.port)
	}
	if got.host == "" {
		t.Error("Host should have a default value")
	}
	if got.configDir == "" {
		t.Error("Config directory should have a default value")
	}
	if got.tokenTTL != defaultTokenTTL {
		t.Errorf("Expected token ttl %v, got %v", defaultTokenTTL, got.tokenTTL)
	}
	if got.roomTTL != directory.DefaultUnusedTTL {
		t.Errorf("Expected room ttl %v, got %v", directory.DefaultUnusedTTL, got.roomTTL)
	}
}

func TestFlagOverrides(t *testing.T) {
	var got options
	app := newApp()
	app.Commands = nil
	app.DefaultCommand = ""
	app.Action = func(ctx context.Context, cmd *cli.Command) error {
		got = optionsFrom(cmd)
		return nil
	}

	t.Setenv("LOG_LEVEL", "debug")
	args := []string{"dicerace", "--port", "9090", "--token-ttl", "1h", "--db", "postgres://x"}
	if err := app.Run(context.Background(), args); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got.port != 9090 || got.tokenTTL != time.Hour || got.db != "postgres://x" {
		t.Errorf("Flags not applied: %+v", got)
	}
	if got.logLevel != "debug" {
		t.Errorf("Expected log level from environment, got %s", got.logLevel)
	}
	if got.addr() != "localhost:9090" {
		t.Errorf("Unexpected addr %s", got.addr())
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "warn", "json")
	if err != nil {
		t.Fatalf("newLogger failed: %v", err)
	}
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), `"message":"shown"`) {
		t.Errorf("Unexpected log output: %s", buf.String())
	}

	if _, err := newLogger(&buf, "loud", "json"); err == nil {
		t.Error("Expected error for unknown level")
	}
	if _, err := newLogger(&buf, "info", "xml"); err == nil {
		t.Error("Expected error for unknown format")
	}
}

func testOptions(t *testing.T) options {
	return options{
		configDir: "configs",
		db:        filepath.Join(t.TempDir(), "test.db"),
		jwtSecret: "test-secret",
		tokenTTL:  time.Hour,
	}
}

func TestInitializeServices(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := initializeServices(ctx, testOptions(t), zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to initialize services: %v", err)
	}
	svc.start(ctx)
	defer svc.close()

	srv := httptest.NewServer(svc.apiServer())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	if !externalServerUp(srv.URL) {
		t.Error("Expected server to be detected")
	}
}

func TestInitializeServices_InvalidConfigDir(t *testing.T) {
	opts := testOptions(t)
	opts.configDir = "/non/existent/path"

	if _, err := initializeServices(context.Background(), opts, zerolog.Nop()); err == nil {
		t.Error("Expected error for non-existent config directory")
	}
}

func TestMCPHandler(t *testing.T) {
	handler := mcpHandler(mcp.NewClient("http://127.0.0.1:1"))

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest("GET", "/mcp", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`
	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest("POST", "/mcp", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "list_rooms") {
		t.Errorf("Expected tools in response, got %s", rec.Body.String())
	}
}

func TestExternalServerUp_Down(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if externalServerUp(srv.URL) {
		t.Error("Expected unhealthy server to be ignored")
	}
}
