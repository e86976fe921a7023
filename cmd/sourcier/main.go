// CLAUDE:SUMMARY Entry point for the sourcier discovery engine — YAML config, optional rod browser prober, Discord/webhook notifiers, chi status server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/sourcier/catalog"
	"github.com/hazyhaar/sourcier/dbopen"
	"github.com/hazyhaar/sourcier/hitlog"
	"github.com/hazyhaar/sourcier/notify"
	"github.com/hazyhaar/sourcier/obs"
	"github.com/hazyhaar/sourcier/probe"
	"github.com/hazyhaar/sourcier/scout"
)

// fileConfig is the YAML schema. Durations are explicit-unit integers so a
// bare number in the file can never be misread as nanoseconds.
type fileConfig struct {
	DataDir      string  `yaml:"data_dir"`
	HitsDB       string  `yaml:"hits_db"`
	LegacyLedger string  `yaml:"legacy_ledger"`
	FlushSeconds int     `yaml:"flush_seconds"`
	GenFloor     float64 `yaml:"gen_floor"`

	Workers        int `yaml:"workers"`
	PauseMs        int `yaml:"pause_ms"`
	ErrorBackoffMs int `yaml:"error_backoff_ms"`

	Weights struct {
		Increment float64 `yaml:"increment"`
		Decrement float64 `yaml:"decrement"`
		Floor     float64 `yaml:"floor"`
	} `yaml:"weights"`

	Probe struct {
		TimeoutSeconds int    `yaml:"timeout_seconds"`
		MaxBytes       int64  `yaml:"max_bytes"`
		UserAgent      string `yaml:"user_agent"`
	} `yaml:"probe"`

	Browser struct {
		Enabled           bool   `yaml:"enabled"`
		RemoteURL         string `yaml:"remote_url"`
		NavTimeoutSeconds int    `yaml:"nav_timeout_seconds"`
	} `yaml:"browser"`

	Discord struct {
		WebhookURL string `yaml:"webhook_url"`
		Username   string `yaml:"username"`
	} `yaml:"discord"`

	Webhook struct {
		URL    string `yaml:"url"`
		Secret string `yaml:"secret"`
	} `yaml:"webhook"`

	StatusAddr string `yaml:"status_addr"`

	Metrics struct {
		DB             string `yaml:"db"`
		SampleSeconds  int    `yaml:"sample_seconds"`
		RetentionHours int    `yaml:"retention_hours"`
	} `yaml:"metrics"`

	Services []catalog.Service `yaml:"services"`
}

func (fc *fileConfig) scoutConfig() *scout.Config {
	return &scout.Config{
		DataDir:         fc.DataDir,
		FlushInterval:   time.Duration(fc.FlushSeconds) * time.Second,
		LegacyLedger:    fc.LegacyLedger,
		GenFloor:        fc.GenFloor,
		Workers:         fc.Workers,
		Pause:           time.Duration(fc.PauseMs) * time.Millisecond,
		ErrorBackoff:    time.Duration(fc.ErrorBackoffMs) * time.Millisecond,
		WeightIncrement: fc.Weights.Increment,
		WeightDecrement: fc.Weights.Decrement,
		WeightFloor:     fc.Weights.Floor,
		Probe: probe.Config{
			Timeout:   time.Duration(fc.Probe.TimeoutSeconds) * time.Second,
			MaxBytes:  fc.Probe.MaxBytes,
			UserAgent: fc.Probe.UserAgent,
		},
	}
}

func main() {
	configPath := env("CONFIG_FILE", "config.yaml")
	logLevel := env("LOG_LEVEL", "info")

	// Logging.
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Config file.
	raw, err := os.ReadFile(configPath)
	if err != nil {
		slog.Error("read config", "path", configPath, "error", err)
		os.Exit(1)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		slog.Error("parse config", "path", configPath, "error", err)
		os.Exit(1)
	}

	cat, err := catalog.New(fc.Services)
	if err != nil {
		slog.Error("catalog", "error", err)
		os.Exit(1)
	}

	// Hit log DB.
	hitsPath := fc.HitsDB
	if hitsPath == "" {
		hitsPath = "db/hits.db"
	}
	hitsDB, err := dbopen.Open(hitsPath, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("hits db", "error", err)
		os.Exit(1)
	}
	defer hitsDB.Close()
	hits := hitlog.New(hitsDB)
	if err := hits.Init(); err != nil {
		slog.Error("hits init", "error", err)
		os.Exit(1)
	}

	// Notifiers. The hit log is always first so a hit is on disk before any
	// delivery attempt.
	opts := []scout.Option{
		scout.WithLogger(logger),
		scout.WithNotifier(hits),
	}
	if url := env("DISCORD_WEBHOOK_URL", fc.Discord.WebhookURL); url != "" {
		discord, err := notify.NewDiscord(notify.DiscordConfig{
			WebhookURL: url,
			Username:   fc.Discord.Username,
		})
		if err != nil {
			slog.Error("discord notifier", "error", err)
			os.Exit(1)
		}
		opts = append(opts, scout.WithNotifier(discord))
	}
	if fc.Webhook.URL != "" {
		hook, err := notify.NewWebhook(notify.WebhookConfig{
			URL:    fc.Webhook.URL,
			Secret: env("WEBHOOK_SECRET", fc.Webhook.Secret),
		})
		if err != nil {
			slog.Error("webhook notifier", "error", err)
			os.Exit(1)
		}
		opts = append(opts, scout.WithNotifier(hook))
	}

	// Optional browser prober for services behind bot walls.
	if fc.Browser.Enabled {
		browser := probe.NewBrowser(probe.BrowserConfig{
			RemoteURL:  fc.Browser.RemoteURL,
			NavTimeout: time.Duration(fc.Browser.NavTimeoutSeconds) * time.Second,
			Logger:     logger,
		})
		if err := browser.Start(ctx); err != nil {
			slog.Error("browser start", "error", err)
			os.Exit(1)
		}
		defer browser.Close()
		opts = append(opts, scout.WithProber(browser))
	}

	svc, err := scout.New(cat, fc.scoutConfig(), opts...)
	if err != nil {
		slog.Error("scout service", "error", err)
		os.Exit(1)
	}
	if err := svc.Start(ctx); err != nil {
		slog.Error("scout start", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	// Metrics: periodic status samples persisted to their own SQLite file.
	metricsPath := fc.Metrics.DB
	if metricsPath == "" {
		metricsPath = "db/metrics.db"
	}
	metricsDB, err := dbopen.Open(metricsPath, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("metrics db", "error", err)
		os.Exit(1)
	}
	defer metricsDB.Close()
	metrics, err := obs.New(metricsDB, logger)
	if err != nil {
		slog.Error("metrics init", "error", err)
		os.Exit(1)
	}
	defer metrics.Close()
	if h := fc.Metrics.RetentionHours; h > 0 {
		if removed, err := metrics.Cleanup(ctx, time.Duration(h)*time.Hour); err != nil {
			slog.Warn("metrics cleanup", "error", err)
		} else if removed > 0 {
			slog.Info("metrics cleanup", "removed", removed)
		}
	}
	statusFn := func() (obs.EngineStatus, error) {
		st, err := svc.Status()
		if err != nil {
			return obs.EngineStatus{}, err
		}
		return obs.EngineStatus{
			Attempts:  st.Attempts,
			Hits:      st.Hits,
			Misses:    st.Misses,
			Errors:    st.Errors,
			KnownURLs: st.KnownURLs,
			Weights:   st.Weights,
		}, nil
	}
	go metrics.RunSampler(ctx, statusFn,
		time.Duration(fc.Metrics.SampleSeconds)*time.Second)

	// Optional status server. The engine itself never listens.
	if addr := env("STATUS_ADDR", fc.StatusAddr); addr != "" {
		srv := &http.Server{Addr: addr, Handler: statusRouter(svc, hits, metrics)}
		go func() {
			slog.Info("status server starting", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("status server", "error", err)
			}
		}()
		defer func() {
			shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutCancel()
			srv.Shutdown(shutCtx)
		}()
	}

	<-ctx.Done()
	slog.Info("shutting down")
}

func statusRouter(svc *scout.Service, hits *hitlog.Store, metrics *obs.Manager) http.Handler {
	r := chi.NewRouter()

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		status, err := svc.Status()
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			return
		}
		byDomain, err := hits.CountByDomain(req.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"started":        humanize.Time(status.StartedAt),
			"uptime":         status.Uptime.Round(time.Second).String(),
			"attempts":       humanize.Comma(status.Attempts),
			"hits":           humanize.Comma(status.Hits),
			"misses":         humanize.Comma(status.Misses),
			"errors":         humanize.Comma(status.Errors),
			"known_urls":     humanize.Comma(status.KnownURLs),
			"weights":        status.Weights,
			"hits_by_domain": byDomain,
		})
	})

	r.Get("/hits", func(w http.ResponseWriter, req *http.Request) {
		limit := 50
		if v := req.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
				limit = n
			}
		}
		entries, err := hits.Recent(req.Context(), limit)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, entries)
	})

	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		name := req.URL.Query().Get("name")
		if name == "" {
			name = obs.MetricHits
		}
		limit := 100
		if v := req.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		points, err := metrics.Query(req.Context(), name, time.Time{}, limit)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, points)
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write json", "error", err)
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
