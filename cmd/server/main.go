package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/shehryarbajwa/devicecloud-mini/internal/api"
	"github.com/shehryarbajwa/devicecloud-mini/internal/artifacts"
	"github.com/shehryarbajwa/devicecloud-mini/internal/catalog"
	"github.com/shehryarbajwa/devicecloud-mini/internal/config"
	"github.com/shehryarbajwa/devicecloud-mini/internal/log"
	"github.com/shehryarbajwa/devicecloud-mini/internal/network"
	"github.com/shehryarbajwa/devicecloud-mini/internal/proxy"
	"github.com/shehryarbajwa/devicecloud-mini/internal/ratelimit"
	"github.com/shehryarbajwa/devicecloud-mini/internal/region"
	"github.com/shehryarbajwa/devicecloud-mini/internal/session"
	"github.com/shehryarbajwa/devicecloud-mini/internal/video"
	"github.com/shehryarbajwa/devicecloud-mini/pkg/models"
)

const (
	httpShutdownTimeout    = 10 * time.Second
	sessionShutdownTimeout = 30 * time.Second
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads --config first so the file can be loaded before the
// remaining flags override it.
func loadConfig(args []string) (config.Config, error) {
	boot := pflag.NewFlagSet("devicecloud-mini", pflag.ContinueOnError)
	boot.ParseErrorsWhitelist.UnknownFlags = true
	boot.Usage = func() {}
	configPath := boot.StringP("config", "c", "", "")
	_ = boot.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return cfg, err
	}

	flagSet := pflag.NewFlagSet("devicecloud-mini", pflag.ContinueOnError)
	flagSet.StringP("config", "c", "", "path to a YAML config file")
	cfg.AddFlags(flagSet)
	if err := flagSet.Parse(args); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

func run(args []string) error {
	cfg, err := loadConfig(args)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	log.Configure(log.Config{Level: cfg.LogLevel})
	logger := log.WithComponent("server")
	logger.Info().Str("region", cfg.Region).Msg("starting devicecloud-mini")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize region manager and transport
	regions := region.NewManager(cfg.APIBaseURL)
	client := network.NewClient(regions, network.WithLogger(log.WithComponent("network")))

	auth, err := catalog.SignIn(ctx, client, regions, cfg.Username, cfg.Password, cfg.Region)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	logger.Info().Str("username", auth.Username).Str("data_center", auth.DataCenter).Msg("signed in")

	store, err := artifacts.NewManager(cfg.ArtifactDir)
	if err != nil {
		return err
	}

	orchestrator := session.NewOrchestrator(session.Dependencies{
		Executor: client,
		Sockets:  client,
		Video: func(creds models.WebRTCCredentials) video.Source {
			return video.NewWebRTC(creds, video.NewHTTPSignaler(client), video.Options{ICEServers: cfg.ICEServers}, log.WithComponent("video"))
		},
		Logger: log.WithComponent("session"),
	}, session.Options{
		ReadinessTimeout: cfg.ReadinessTimeout,
		InstallTimeout:   cfg.InstallTimeout,
		InstallInterval:  cfg.InstallInterval,
		CloseTimeout:     cfg.CloseTimeout,
		ConnectVideo:     cfg.ConnectVideo,
	})

	// Sessions outlive the signal context; Shutdown tears them down.
	sessionCtx, cancelSessions := context.WithCancel(context.Background())
	defer cancelSessions()
	sessionMgr := session.NewManager(sessionCtx, orchestrator, int64(cfg.MaxSessions), store, log.WithComponent("sessions"))

	proxyServer := proxy.NewServer(sessionMgr, log.WithComponent("proxy"))
	commands := ratelimit.NewLimiter(cfg.CommandsPerMinute, cfg.CommandBurst)
	sessionMgr.OnClosed(commands.Forget)
	limits := api.Limits{
		Creates:           ratelimit.NewLimiter(cfg.CreatesPerMinute, cfg.CreatesPerMinute),
		CreatesPerMinute:  cfg.CreatesPerMinute,
		Commands:          commands,
		CommandsPerMinute: cfg.CommandsPerMinute,
	}

	handler := api.NewHandler(sessionMgr, catalog.New(client, nil, log.WithComponent("catalog")), auth, log.WithComponent("api"))
	router := handler.SetupRoutes(api.NewArtifactHandler(store), proxyServer, limits, log.WithComponent("http"))

	// Reads are left unbounded for the viewer websocket.
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("control API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-serveErr:
		if err != nil {
			logger.Error().Err(err).Msg("server error")
		}
	}

	httpCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(httpCtx); err != nil {
		logger.Warn().Err(err).Msg("http server forced to shut down")
	}

	sessionsCtx, cancelShutdown := context.WithTimeout(context.Background(), sessionShutdownTimeout)
	defer cancelShutdown()
	if err := sessionMgr.Shutdown(sessionsCtx); err != nil {
		logger.Warn().Err(err).Msg("sessions did not shut down in time")
	}

	if err := catalog.SignOut(sessionsCtx, client, auth); err != nil {
		logger.Warn().Err(err).Msg("sign out failed")
	}

	logger.Info().Msg("stopped cleanly")
	return nil
}
