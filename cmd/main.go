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

	"github.com/alecthomas/kingpin/v2"
	"github.com/gin-gonic/gin"
	"github.com/oklog/run"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"vidfetch/internal/api"
	"vidfetch/internal/config"
	fileutil "vidfetch/internal/file"
	"vidfetch/internal/media"
	"vidfetch/internal/task"
)

const readHeaderTimeout = 5 * time.Second

type flags struct {
	configPath string
	port       int
	logLevel   string
	logFormat  string
}

func main() {
	if err := Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("vidfetch stopped")
	}
}

// Run parses args, builds the service and blocks until it shuts down.
func Run(args []string) error {
	app := kingpin.New("vidfetch", "Asynchronous video download service.")
	var f flags
	app.Flag("config", "Path to the YAML config file.").Envar("VIDFETCH_CONFIG").Default("config.yml").StringVar(&f.configPath)
	app.Flag("port", "HTTP port, overrides the config file.").Envar("VIDFETCH_PORT").IntVar(&f.port)
	app.Flag("log-level", "Log level, overrides the config file.").Envar("VIDFETCH_LOG_LEVEL").StringVar(&f.logLevel)
	app.Flag("log-format", "Log output format.").Envar("VIDFETCH_LOG_FORMAT").Default("console").EnumVar(&f.logFormat, "console", "json")
	if _, err := app.Parse(args[1:]); err != nil {
		return fmt.Errorf("invalid command line: %w", err)
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if f.port != 0 {
		cfg.Port = f.port
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := setupLogger(cfg.LogLevel, f.logFormat); err != nil {
		return err
	}

	if err := fileutil.EnsureDir(cfg.DataDir); err != nil {
		return fmt.Errorf("ensure data dir %s: %w", cfg.DataDir, err)
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())
	defer baseCancel()

	if cfg.YTDLP.Install {
		log.Info().Msg("installing yt-dlp")
		if err := media.Install(baseCtx); err != nil {
			return err
		}
	}

	client := media.NewClient(cfg.ExtractTimeout)
	taskManager := buildTaskManager(cfg, client)
	taskManager.SetBaseContext(baseCtx)

	router := setupRouter()
	wireAPI(router, taskManager, client)
	srv := newHTTPServer(cfg.Port, router, readHeaderTimeout)

	var g run.Group

	// OS signals.
	{
		signalCtx, signalCancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer signalCancel()
		g.Add(
			func() error {
				<-signalCtx.Done()
				log.Info().Msg("shutdown signal received")
				return nil
			},
			func(_ error) {
				signalCancel()
			},
		)
	}

	// HTTP server.
	{
		g.Add(
			func() error {
				log.Info().Int("port", cfg.Port).Str("data_dir", cfg.DataDir).
					Int("max_concurrent_tasks", cfg.MaxConcurrentTasks).
					Int("max_pending_tasks", cfg.MaxPendingTasks).
					Msg("http server listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server failed: %w", err)
				}
				return nil
			},
			func(_ error) {
				gracefulShutdown(srv, baseCancel, taskManager, cfg.ShutdownTimeout)
			},
		)
	}

	// Expired task eviction.
	{
		janitorCtx, janitorCancel := context.WithCancel(baseCtx)
		g.Add(
			func() error {
				taskManager.RunJanitor(janitorCtx, cfg.CleanupInterval)
				return nil
			},
			func(_ error) {
				janitorCancel()
			},
		)
	}

	return g.Run()
}

func setupLogger(level, format string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	if format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return nil
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	return nil
}

func setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(api.Recovery())
	r.Use(api.ZerologLogger())
	return r
}

func buildTaskManager(cfg config.Config, d task.Downloader) *task.Manager {
	return task.NewManagerWithOptions(task.Options{
		DataDir:             cfg.DataDir,
		MaxConcurrentTasks:  cfg.MaxConcurrentTasks,
		MaxPendingTasks:     cfg.MaxPendingTasks,
		TaskTTL:             cfg.TaskTTL,
		YouTubeOnly:         cfg.YouTubeOnly,
		DiskPressurePercent: cfg.DiskPressurePercent,
	}, task.NewStore(), d)
}

func wireAPI(router *gin.Engine, tm *task.Manager, ex api.Extractor) {
	apiHandler := api.NewAPI(tm, ex)
	apiHandler.RegisterRoutes(router)
	apiHandler.RegisterUIRoutes(router)
}

func newHTTPServer(port int, handler http.Handler, readHeaderTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// gracefulShutdown stops accepting requests, gives running downloads up to
// timeout to finish and then cancels whatever is left.
func gracefulShutdown(srv *http.Server, cancelBase context.CancelFunc, tm *task.Manager, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown warning")
	}

	if !tm.WaitAll(ctx) {
		log.Warn().Int("active_downloads", tm.ActiveDownloads()).Msg("downloads did not finish before timeout, cancelling")
		cancelBase()
		drainCtx, drainCancel := context.WithTimeout(context.Background(), readHeaderTimeout)
		defer drainCancel()
		tm.WaitAll(drainCtx)
	}
	cancelBase()
	log.Info().Msg("server exited cleanly")
}
