package main

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"golang.org/x/net/netutil"
	"gopkg.in/natefinch/lumberjack.v2"

	sealpress "github.com/hankolab/sealpress"
	"github.com/hankolab/sealpress/adapters/render"
	"github.com/hankolab/sealpress/adapters/vipsrender"
	"github.com/hankolab/sealpress/api"
	"github.com/hankolab/sealpress/config"
	"github.com/hankolab/sealpress/hooks"
)

func main() {
	cfg := config.Default()
	if path := os.Getenv("SEALPRESS_CONFIG"); path != "" {
		loaded, err := config.LoadFile(path)
		if err != nil {
			slog.Error("failed to load config", "path", path, "error", err.Error())
			os.Exit(1)
		}
		cfg = loaded
	}
	cfg = config.FromEnv(cfg)

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)
	log := hooks.NewSlogLogger(logger)

	svc, err := newService(cfg)
	if err != nil {
		log.Error("failed to initialize service", "error", err.Error())
		os.Exit(1)
	}

	metrics := hooks.NewInMemoryMetrics()
	svc.AddHook(hooks.NewLoggingHook(log))
	svc.AddHook(hooks.NewMetricsHook(metrics))

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	api.RegisterRoutes(router, api.NewHandler(svc, metrics, log), cfg.Server.CORSOrigin)

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		log.Error("failed to listen", "addr", cfg.Server.Addr, "error", err.Error())
		os.Exit(1)
	}
	if cfg.Server.MaxConns > 0 {
		ln = netutil.LimitListener(ln, cfg.Server.MaxConns)
	}

	log.Info("listening",
		"addr", cfg.Server.Addr,
		"storage", string(cfg.Storage.Backend),
		"renderer", string(cfg.Renderer.Strategy))

	srv := &http.Server{Handler: router}
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		log.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
}

// newService builds the facade for the configured render strategy.
func newService(cfg config.Config) (*sealpress.Service, error) {
	if cfg.Renderer.Strategy == config.RenderVipsSVG {
		tf, err := render.ResolveTypeface(cfg.Renderer.FontName, cfg.Renderer.FontFile)
		if err != nil {
			return nil, err
		}
		vipsrender.Startup(0)
		return sealpress.NewWith(cfg, vipsrender.New(tf, cfg.Renderer.Placeholder))
	}
	return sealpress.New(cfg)
}

func newLogger(lc config.LogConfig) *slog.Logger {
	var out io.Writer = os.Stderr
	if lc.File != "" {
		maxSize := lc.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 20
		}
		out = &lumberjack.Logger{
			Filename:   lc.File,
			MaxSize:    maxSize,
			MaxBackups: 3,
			Compress:   true,
		}
	}
	level := slog.LevelInfo
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
}
