// Command dicerace starts the Dice Race server.
//
// It supports three commands:
//  1. "server" (default) – runs the HTTP server exposing the REST API, the
//     room websockets and an /mcp HTTP endpoint
//  2. "stdio-mcp" – runs an MCP stdio server and spins up an internal HTTP API
//     if none is available
//  3. "validate" – checks the room presets in the config directory
//
// Every flag can also be set from the environment or a .env file.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/dicerace/api"
	"github.com/wricardo/dicerace/auth"
	"github.com/wricardo/dicerace/game/config"
	"github.com/wricardo/dicerace/game/directory"
	"github.com/wricardo/dicerace/game/service"
	"github.com/wricardo/dicerace/stats"
	"github.com/wricardo/dicerace/storage"
	"github.com/wricardo/dicerace/transport/mcp"
	"github.com/wricardo/dicerace/transport/websocket"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Dice Race Server"
)

// Defaults shared by the flags and the tests.
const (
	defaultHost      = "localhost"
	defaultPort      = 8080
	defaultConfigDir = "configs"
	defaultDB        = "data/dicerace.db"
	defaultTokenTTL  = 30 * time.Minute
)

// options is the parsed command line.
type options struct {
	host        string
	port        int
	configDir   string
	db          string
	jwtSecret   string
	tokenTTL    time.Duration
	roomTTL     time.Duration
	logLevel    string
	logFormat   string
	ngrok       bool
	ngrokAuth   string
	ngrokDomain string
}

func (o options) addr() string {
	return fmt.Sprintf("%s:%d", o.host, o.port)
}

func main() {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
	}

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newApp builds the command tree.
func newApp() *cli.Command {
	return &cli.Command{
		Name:           "dicerace",
		Usage:          AppName,
		Version:        Version,
		DefaultCommand: "server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Value: defaultHost, Usage: "HTTP server host", Sources: cli.EnvVars("HOST")},
			&cli.IntFlag{Name: "port", Value: defaultPort, Usage: "HTTP server port", Sources: cli.EnvVars("PORT")},
			&cli.StringFlag{Name: "config-dir", Value: defaultConfigDir, Usage: "Directory containing room presets", Sources: cli.EnvVars("CONFIG_DIR")},
			&cli.StringFlag{Name: "db", Value: defaultDB, Usage: "SQLite path or postgres:// URL", Sources: cli.EnvVars("DATABASE_URL")},
			&cli.StringFlag{Name: "jwt-secret", Usage: "Secret used to sign access tokens (random when empty)", Sources: cli.EnvVars("JWT_SECRET")},
			&cli.DurationFlag{Name: "token-ttl", Value: defaultTokenTTL, Usage: "Access token lifetime", Sources: cli.EnvVars("TOKEN_TTL")},
			&cli.DurationFlag{Name: "room-ttl", Value: directory.DefaultUnusedTTL, Usage: "How long a room nobody joined is kept", Sources: cli.EnvVars("ROOM_TTL")},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn or error", Sources: cli.EnvVars("LOG_LEVEL")},
			&cli.StringFlag{Name: "log-format", Value: "console", Usage: "console or json", Sources: cli.EnvVars("LOG_FORMAT")},
			&cli.BoolFlag{Name: "ngrok", Usage: "Enable ngrok tunnel", Sources: cli.EnvVars("NGROK_ENABLED")},
			&cli.StringFlag{Name: "ngrok-auth", Usage: "Ngrok auth token", Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN")},
			&cli.StringFlag{Name: "ngrok-domain", Usage: "Custom ngrok domain (optional)", Sources: cli.EnvVars("NGROK_DOMAIN")},
		},
		Commands: []*cli.Command{
			{
				Name:    "server",
				Aliases: []string{"http"},
				Usage:   "Run HTTP server with API, WebSocket, and MCP endpoint",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runHTTPServer(ctx, optionsFrom(cmd))
				},
			},
			{
				Name:    "stdio-mcp",
				Aliases: []string{"mcp-stdio", "mcp"},
				Usage:   "Run MCP stdio server with internal HTTP server",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runStdioMCP(ctx, optionsFrom(cmd))
				},
			},
			{
				Name:  "validate",
				Usage: "Validate the room presets in the config directory",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					ok, err := validatePresets(cmd.Root().Writer, cmd.String("config-dir"))
					if err != nil {
						return err
					}
					if !ok {
						return cli.Exit("", 1)
					}
					return nil
				},
			},
		},
	}
}

func optionsFrom(cmd *cli.Command) options {
	return options{
		host:        cmd.String("host"),
		port:        cmd.Int("port"),
		configDir:   cmd.String("config-dir"),
		db:          cmd.String("db"),
		jwtSecret:   cmd.String("jwt-secret"),
		tokenTTL:    cmd.Duration("token-ttl"),
		roomTTL:     cmd.Duration("room-ttl"),
		logLevel:    cmd.String("log-level"),
		logFormat:   cmd.String("log-format"),
		ngrok:       cmd.Bool("ngrok"),
		ngrokAuth:   cmd.String("ngrok-auth"),
		ngrokDomain: cmd.String("ngrok-domain"),
	}
}

// newLogger writes to w, which is stderr in every mode so stdio MCP keeps
// stdout to itself.
func newLogger(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var logger zerolog.Logger
	switch format {
	case "json":
		logger = zerolog.New(w)
	case "console", "":
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.DateTime})
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q", format)
	}
	return logger.Level(lvl).With().Timestamp().Logger(), nil
}

// services holds everything a running server owns.
type services struct {
	store    storage.Store
	recorder *stats.Recorder
	hub      *websocket.Hub
	rooms    *directory.Directory
	roomTTL  time.Duration
	coord    *service.Coordinator
	auth     *auth.Service
	logger   zerolog.Logger
}

// initializeServices wires storage, presets, rooms, the socket hub and auth.
// Background loops are started by start.
func initializeServices(ctx context.Context, opts options, logger zerolog.Logger) (*services, error) {
	presets, err := config.NewManager(opts.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create config manager: %w", err)
	}

	store, err := storage.Open(ctx, opts.db)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	secret := opts.jwtSecret
	if secret == "" {
		secret = uuid.NewString()
		logger.Warn().Msg("no jwt secret configured, tokens will not survive a restart")
	}

	recorder := stats.NewRecorder(store, stats.WithLogger(logger.With().Str("component", "stats").Logger()))
	hub := websocket.NewHub(websocket.WithLogger(logger.With().Str("component", "hub").Logger()))
	rooms := directory.New(
		directory.WithStatsSink(recorder),
		directory.WithLogger(logger.With().Str("component", "rooms").Logger()),
	)
	coord := service.NewCoordinator(rooms, hub, presets, logger.With().Str("component", "coordinator").Logger())
	authService := auth.NewService(store, auth.NewTokens(secret, opts.tokenTTL),
		auth.WithLogger(logger.With().Str("component", "auth").Logger()))

	return &services{
		store:    store,
		recorder: recorder,
		hub:      hub,
		rooms:    rooms,
		roomTTL:  opts.roomTTL,
		coord:    coord,
		auth:     authService,
		logger:   logger,
	}, nil
}

func (s *services) start(ctx context.Context) {
	go s.recorder.Run(ctx)
	go s.hub.Run(ctx)
	if s.roomTTL > 0 {
		go s.rooms.Run(ctx, directory.DefaultSweepInterval, s.roomTTL)
	}
}

// close flushes pending match records before the store goes away.
func (s *services) close() {
	s.recorder.Close()
	if err := s.store.Close(); err != nil {
		s.logger.Error().Err(err).Msg("store close failed")
	}
}

func (s *services) apiServer() *api.Server {
	return api.NewServer(s.coord, s.hub, s.auth, s.store, s.logger.With().Str("component", "api").Logger())
}

// mcpHandler serves single JSON-RPC messages over POST.
func mcpHandler(client *mcp.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := client.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	}
}

// runHTTPServer starts the HTTP server with the REST API, websockets and an
// /mcp proxy endpoint. If ngrok is enabled it also provisions a public tunnel.
func runHTTPServer(parent context.Context, opts options) error {
	logger, err := newLogger(os.Stderr, opts.logLevel, opts.logFormat)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := initializeServices(ctx, opts, logger)
	if err != nil {
		return err
	}
	defer svc.close()

	// Runs on a context that outlives the signal so the recorder can drain
	// after the HTTP server has stopped.
	bgCtx, bgCancel := context.WithCancel(context.WithoutCancel(parent))
	defer bgCancel()
	svc.start(bgCtx)

	addr := opts.addr()
	mcpClient := mcp.NewClient(fmt.Sprintf("http://%s", addr))

	apiServer := svc.apiServer()
	apiServer.Router().Handle("/mcp", mcpHandler(mcpClient))

	httpServer := &http.Server{
		Addr:        addr,
		Handler:     apiServer,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()

		logger.Info().Str("version", Version).Str("addr", addr).Msg("HTTP server listening")
		logger.Info().Msgf("REST API: http://%s/api", addr)
		logger.Info().Msgf("WebSocket: ws://%s/ws/<room_id>", addr)
		logger.Info().Msgf("MCP endpoint: http://%s/mcp", addr)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	if opts.ngrok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrok(ctx, opts, apiServer, logger)
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err = <-errCh:
		logger.Error().Err(err).Msg("server stopped")
	}
	stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error().Err(shutdownErr).Msg("HTTP server shutdown error")
	}

	wg.Wait()
	bgCancel()
	logger.Info().Msg("server stopped")
	return err
}

// runNgrok serves handler through a tunnel until ctx is done.
func runNgrok(ctx context.Context, opts options, handler http.Handler, logger zerolog.Logger) {
	if opts.ngrokAuth == "" {
		logger.Warn().Msg("ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN)")
		return
	}

	logger.Info().Msg("starting ngrok tunnel")

	var tunnel ngrokConfig.Tunnel
	if opts.ngrokDomain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(opts.ngrokDomain))
		logger.Info().Str("domain", opts.ngrokDomain).Msg("using custom ngrok domain")
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(opts.ngrokAuth))
	if err != nil {
		logger.Error().Err(err).Msg("failed to start ngrok tunnel")
		return
	}

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close ngrok tunnel")
		}
	}()

	ngrokURL := tun.URL()
	logger.Info().Str("url", ngrokURL).Msg("ngrok tunnel established")
	logger.Info().Msgf("  REST API (ngrok): %s/api", ngrokURL)
	logger.Info().Msgf("  WebSocket (ngrok): %s/ws/<room_id>", ngrokURL)
	logger.Info().Msgf("  MCP endpoint (ngrok): %s/mcp", ngrokURL)

	if err := http.Serve(tun, handler); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		logger.Error().Err(err).Msg("ngrok server error")
	}
	logger.Info().Msg("ngrok tunnel closed")
}

// externalServerUp reports whether a server answers /healthz at baseURL.
func externalServerUp(baseURL string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/healthz")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// runStdioMCP runs an MCP stdio server. It reuses an API already listening
// on --host/--port; otherwise it starts an internal one on a random loopback
// port and targets that.
func runStdioMCP(parent context.Context, opts options) error {
	logger, err := newLogger(os.Stderr, opts.logLevel, opts.logFormat)
	if err != nil {
		return err
	}

	baseURL := fmt.Sprintf("http://%s", opts.addr())
	logger.Info().Str("url", baseURL).Msg("checking for external API server")

	if externalServerUp(baseURL) {
		logger.Info().Msg("MCP stdio server ready (using external HTTP server)")
	} else {
		logger.Info().Msg("no external API server found, starting internal HTTP server")

		svc, err := initializeServices(parent, opts, logger)
		if err != nil {
			return err
		}
		defer svc.close()

		ctx, cancel := context.WithCancel(parent)
		defer cancel()
		svc.start(ctx)

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}

		httpServer := &http.Server{Handler: svc.apiServer()}
		go func() {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("internal HTTP server error")
			}
		}()
		defer httpServer.Close()

		baseURL = fmt.Sprintf("http://%s", listener.Addr().String())
		logger.Info().Str("url", baseURL).Msg("MCP stdio server ready (using internal HTTP server)")
	}

	mcpClient := mcp.NewClient(baseURL)
	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}
