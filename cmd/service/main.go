package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	rdb "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/buzonero/internal/config"
	"github.com/dropDatabas3/buzonero/internal/dispatch"
	httpx "github.com/dropDatabas3/buzonero/internal/http"
	"github.com/dropDatabas3/buzonero/internal/http/handlers"
	"github.com/dropDatabas3/buzonero/internal/mailer"
	"github.com/dropDatabas3/buzonero/internal/notes"
	"github.com/dropDatabas3/buzonero/internal/observability/logger"
	"github.com/dropDatabas3/buzonero/internal/rate"
	"github.com/dropDatabas3/buzonero/internal/store"
	fsstore "github.com/dropDatabas3/buzonero/internal/store/fs"
	pgstore "github.com/dropDatabas3/buzonero/internal/store/pg"
	"github.com/dropDatabas3/buzonero/internal/tracking"
)

func fileExists(p string) bool {
	if p == "" {
		return false
	}
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}

func printConfigSummary(c *config.Config) {
	key := "***masked***"
	if c.Auth.APIKeyHash == "" {
		key = "DISABLED"
	}
	log.Printf(`CONFIG:
  app.env=%s log.level=%s
  server.addr=%s cors=%v

  storage.driver=%s fs_root=%s

  smtp(host=%s, port=%d, user=%s, from=%s, tls=%s, insecure=%t)

  dispatch(daily_limit=%d, warning_threshold=%d, pace=%s, base_url=%s, uploads=%s)

  rate(enabled=%t, backend=%s, limit=%d, window=%s)
  redis.addr=%s db=%d prefix=%s

  auth.api_key_hash=%s
`,
		c.App.Env, c.Log.Level,
		c.Server.Addr, c.Server.CORSAllowedOrigins,
		c.Storage.Driver, c.Storage.FSRoot,
		c.SMTP.Host, c.SMTP.Port, c.SMTP.Username, c.SMTP.From, c.SMTP.TLS, c.SMTP.InsecureSkipVerify,
		c.Dispatch.DailyLimit, c.Dispatch.WarningThreshold, c.Dispatch.Pace, c.Dispatch.BaseURL, c.Dispatch.UploadsDir,
		c.Rate.Enabled, c.Rate.Backend, c.Rate.Send.Limit, c.Rate.Send.Window,
		c.Rate.Redis.Addr, c.Rate.Redis.DB, c.Rate.Redis.Prefix,
		key,
	)
}

func main() {
	var (
		flagConfigPath = flag.String("config", "", "ruta a config.yaml (fallback: $CONFIG_PATH o configs/config.yaml)")
		flagEnvOnly    = flag.Bool("env", false, "usar SOLO env (y .env si se pasa -env-file)")
		flagEnvFile    = flag.String("env-file", ".env", "ruta a .env (si existe, se carga)")
		flagPrint      = flag.Bool("print-config", false, "imprime config efectiva y termina")
	)
	flag.Parse()

	if *flagEnvFile != "" && (fileExists(*flagEnvFile) || *flagEnvOnly) {
		if err := godotenv.Load(*flagEnvFile); err == nil {
			log.Printf("dotenv: cargado %s", *flagEnvFile)
		}
	}

	var cfg *config.Config
	var err error
	if *flagEnvOnly {
		cfg, err = config.FromEnv()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
	} else {
		cfgPath := *flagConfigPath
		if cfgPath == "" {
			cfgPath = os.Getenv("CONFIG_PATH")
		}
		if cfgPath == "" {
			if fileExists("configs/config.yaml") {
				cfgPath = "configs/config.yaml"
			} else {
				cfgPath = "configs/config.example.yaml"
			}
		}
		cfg, err = config.Load(cfgPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
	}
	if *flagPrint {
		printConfigSummary(cfg)
		return
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: "buzonero",
	})
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	// ─── Storage ───
	var stores *store.Stores
	switch cfg.Storage.Driver {
	case "postgres":
		stores, err = pgstore.Open(ctx, pgstore.Config{
			DSN:             cfg.Storage.Postgres.DSN,
			MaxOpenConns:    cfg.Storage.Postgres.MaxOpenConns,
			MinConns:        cfg.Storage.Postgres.MinConns,
			ConnMaxLifetime: cfg.Storage.Postgres.ConnMaxLifetime,
		})
	default:
		stores, err = fsstore.Open(cfg.Storage.FSRoot)
	}
	if err != nil {
		log.Fatalf("store open: %v", err)
	}
	defer func() {
		if stores.Close != nil {
			_ = stores.Close()
		}
	}()

	// Notas: siempre sobre FS, las lee la UI externa
	notesStore, err := notes.New(cfg.Storage.FSRoot)
	if err != nil {
		log.Fatalf("notes store: %v", err)
	}

	// ─── SMTP relay ───
	relay := mailer.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password)
	relay.TLSMode = cfg.SMTP.TLS
	relay.InsecureSkipVerify = cfg.SMTP.InsecureSkipVerify

	// ─── Tracking + métricas ───
	tracker := &tracking.Correlator{BaseURL: cfg.Dispatch.BaseURL, Log: stores.Log}

	metricsHandler, err := httpx.RegisterMetrics(nil)
	if err != nil {
		log.Fatalf("metrics: %v", err)
	}
	recorder := httpx.Recorder{}

	// ─── Motor de despacho ───
	engine := dispatch.New(dispatch.Config{
		Relay:            relay,
		Quota:            stores.Quota,
		Log:              stores.Log,
		Tracker:          tracker,
		FromAddr:         cfg.SMTP.From,
		DailyLimit:       cfg.Dispatch.DailyLimit,
		WarningThreshold: cfg.Dispatch.WarningThreshold,
		Pace:             cfg.PaceDuration(),
		Metrics:          recorder,
	})

	// ─── Rate limiter ───
	var limiter rate.Limiter
	var redisPing func(ctx context.Context) error
	if cfg.Rate.Enabled {
		switch cfg.Rate.Backend {
		case "redis":
			client := rdb.NewClient(&rdb.Options{
				Addr: cfg.Rate.Redis.Addr,
				DB:   cfg.Rate.Redis.DB,
			})
			limiter = rate.NewRedisLimiter(client, cfg.Rate.Redis.Prefix, cfg.Rate.Send.Limit, cfg.SendWindow())
			redisPing = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		default:
			limiter = rate.NewMemoryLimiter(cfg.Rate.Send.Limit, cfg.SendWindow())
		}
	}

	// ─── Rutas ───
	r := chi.NewRouter()

	// API protegida por X-API-Key (hash vacío = abierta, modo dev)
	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return httpx.RequireAPIKey(cfg.Auth.APIKeyHash, next)
		})
		(&handlers.SendHandler{Engine: engine, UploadsDir: cfg.Dispatch.UploadsDir}).Register(r)
		(&handlers.LogHandler{Log: stores.Log}).Register(r)
		(&handlers.QuotaHandler{Quota: stores.Quota, Limit: cfg.Dispatch.DailyLimit}).Register(r)
		(&handlers.NotesHandler{Store: notesStore}).Register(r)
	})

	// pixel y probes, siempre públicos
	(&handlers.TrackHandler{Tracker: tracker, Metrics: recorder}).Register(r)
	r.Get("/healthz", handlers.NewHealthzHandler())
	r.Get("/readyz", handlers.NewReadyzHandler(
		func(ctx context.Context) error { _, err := stores.Quota.Current(ctx); return err },
		redisPing,
	))
	r.Handle("/metrics", metricsHandler)

	handler := httpx.WithLogging(
		httpx.WithRecover(
			httpx.WithRequestID(
				httpx.WithMetrics(
					httpx.WithRateLimit(
						httpx.WithSecurityHeaders(
							httpx.WithCORS(r, cfg.Server.CORSAllowedOrigins),
						),
						limiter,
					),
				),
			),
		),
	)

	logger.L().Info("service up",
		logger.String("addr", cfg.Server.Addr),
		logger.String("driver", cfg.Storage.Driver),
		logger.String("base_url", cfg.Dispatch.BaseURL),
		logger.Int("daily_limit", cfg.Dispatch.DailyLimit),
		logger.String("time", time.Now().Format(time.RFC3339)),
	)

	if err := httpx.Start(cfg.Server.Addr, handler); err != nil {
		log.Fatalf("http: %v", err)
	}
}
