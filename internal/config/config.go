package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Server struct {
		Addr               string   `yaml:"addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	} `yaml:"server"`

	Storage struct {
		// fs | postgres
		Driver string `yaml:"driver"`
		FSRoot string `yaml:"fs_root"`

		Postgres struct {
			DSN             string `yaml:"dsn"`
			MaxOpenConns    int    `yaml:"max_open_conns"`
			MinConns        int    `yaml:"min_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	SMTP struct {
		Host               string `yaml:"host"`
		Port               int    `yaml:"port"`
		Username           string `yaml:"username"`
		Password           string `yaml:"password"`
		From               string `yaml:"from"`
		TLS                string `yaml:"tls"`                  // auto | starttls | ssl | none
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"` // sólo dev
	} `yaml:"smtp"`

	Dispatch struct {
		// Techo diario de envíos exitosos. Se resetea al cambiar el día.
		DailyLimit int `yaml:"daily_limit"`
		// Al cruzar este contador se emite UNA advertencia por invocación.
		WarningThreshold int `yaml:"warning_threshold"`
		// Espera fija entre destinatarios consecutivos (string duration, ej "2s").
		Pace string `yaml:"pace"`
		// URL base pública para el pixel de tracking (<base_url>/track/<id>).
		BaseURL string `yaml:"base_url"`
		// Directorio donde se guardan los adjuntos subidos antes de enviar.
		UploadsDir string `yaml:"uploads_dir"`
	} `yaml:"dispatch"`

	Rate struct {
		Enabled bool `yaml:"enabled"`
		// memory | redis
		Backend string `yaml:"backend"`
		Send    struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"send"`
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"rate"`

	Auth struct {
		// PHC argon2id del API key. Vacío deshabilita la autenticación (dev).
		APIKeyHash string `yaml:"api_key_hash"`
	} `yaml:"auth"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	c.applyEnvOverrides()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// FromEnv arma la config SOLO desde variables de entorno (modo -env).
func FromEnv() (*Config, error) {
	var c Config
	c.applyDefaults()
	c.applyEnvOverrides()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "fs"
	}
	if c.Storage.FSRoot == "" {
		c.Storage.FSRoot = "./data/buzonero"
	}
	if c.Storage.Postgres.MaxOpenConns == 0 {
		c.Storage.Postgres.MaxOpenConns = 5
	}
	if c.Storage.Postgres.MinConns == 0 {
		c.Storage.Postgres.MinConns = 1
	}
	if c.Storage.Postgres.ConnMaxLifetime == "" {
		c.Storage.Postgres.ConnMaxLifetime = "30m"
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.SMTP.TLS == "" {
		c.SMTP.TLS = "auto"
	}
	if c.SMTP.From == "" {
		c.SMTP.From = c.SMTP.Username
	}
	if c.Dispatch.DailyLimit == 0 {
		c.Dispatch.DailyLimit = 300
	}
	if c.Dispatch.WarningThreshold == 0 {
		c.Dispatch.WarningThreshold = 200
	}
	if c.Dispatch.Pace == "" {
		c.Dispatch.Pace = "2s"
	}
	if c.Dispatch.BaseURL == "" {
		c.Dispatch.BaseURL = "http://localhost:8080"
	}
	if c.Dispatch.UploadsDir == "" {
		c.Dispatch.UploadsDir = "./uploads"
	}
	if c.Rate.Backend == "" {
		c.Rate.Backend = "memory"
	}
	if c.Rate.Send.Limit == 0 {
		c.Rate.Send.Limit = 5
	}
	if c.Rate.Send.Window == "" {
		c.Rate.Send.Window = "1m"
	}
	if c.Rate.Redis.Addr == "" {
		c.Rate.Redis.Addr = "localhost:6379"
	}
	if c.Rate.Redis.Prefix == "" {
		c.Rate.Redis.Prefix = "buzonero:"
	}
}

// applyEnvOverrides pisa el YAML con variables de entorno.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvCSV("SERVER_CORS_ALLOWED_ORIGINS"); ok {
		c.Server.CORSAllowedOrigins = v
	}

	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_FS_ROOT"); ok {
		c.Storage.FSRoot = v
	}
	if v, ok := getEnvStr("POSTGRES_DSN"); ok {
		c.Storage.Postgres.DSN = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_OPEN_CONNS"); ok {
		c.Storage.Postgres.MaxOpenConns = v
	}
	if v, ok := getEnvInt("POSTGRES_MIN_CONNS"); ok {
		c.Storage.Postgres.MinConns = v
	}
	if v, ok := getEnvStr("POSTGRES_CONN_MAX_LIFETIME"); ok {
		c.Storage.Postgres.ConnMaxLifetime = v
	}

	if v, ok := getEnvStr("SMTP_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
	if v, ok := getEnvStr("SMTP_USERNAME"); ok {
		c.SMTP.Username = v
	}
	if v, ok := getEnvStr("SMTP_PASSWORD"); ok {
		c.SMTP.Password = v
	}
	if v, ok := getEnvStr("SMTP_FROM"); ok {
		c.SMTP.From = v
	}
	if v, ok := getEnvStr("SMTP_TLS"); ok {
		c.SMTP.TLS = v
	}
	if v, ok := getEnvBool("SMTP_INSECURE_SKIP_VERIFY"); ok {
		c.SMTP.InsecureSkipVerify = v
	}
	if c.SMTP.From == "" {
		c.SMTP.From = c.SMTP.Username
	}

	if v, ok := getEnvInt("DISPATCH_DAILY_LIMIT"); ok {
		c.Dispatch.DailyLimit = v
	}
	if v, ok := getEnvInt("DISPATCH_WARNING_THRESHOLD"); ok {
		c.Dispatch.WarningThreshold = v
	}
	if v, ok := getEnvStr("DISPATCH_PACE"); ok {
		c.Dispatch.Pace = v
	}
	if v, ok := getEnvStr("DISPATCH_BASE_URL"); ok {
		c.Dispatch.BaseURL = v
	}
	if v, ok := getEnvStr("DISPATCH_UPLOADS_DIR"); ok {
		c.Dispatch.UploadsDir = v
	}

	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvStr("RATE_BACKEND"); ok {
		c.Rate.Backend = v
	}
	if v, ok := getEnvInt("RATE_SEND_LIMIT"); ok {
		c.Rate.Send.Limit = v
	}
	if v, ok := getEnvStr("RATE_SEND_WINDOW"); ok {
		c.Rate.Send.Window = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Rate.Redis.Addr = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Rate.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Rate.Redis.Prefix = v
	}

	if v, ok := getEnvStr("AUTH_API_KEY_HASH"); ok {
		c.Auth.APIKeyHash = v
	}
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "fs":
		if strings.TrimSpace(c.Storage.FSRoot) == "" {
			return fmt.Errorf("config: storage.fs_root requerido con driver fs")
		}
	case "postgres":
		if strings.TrimSpace(c.Storage.Postgres.DSN) == "" {
			return fmt.Errorf("config: storage.postgres.dsn requerido con driver postgres")
		}
	default:
		return fmt.Errorf("config: storage.driver desconocido: %q", c.Storage.Driver)
	}

	switch c.SMTP.TLS {
	case "auto", "starttls", "ssl", "none":
	default:
		return fmt.Errorf("config: smtp.tls inválido: %q", c.SMTP.TLS)
	}

	if c.Dispatch.WarningThreshold > c.Dispatch.DailyLimit {
		return fmt.Errorf("config: dispatch.warning_threshold (%d) > daily_limit (%d)",
			c.Dispatch.WarningThreshold, c.Dispatch.DailyLimit)
	}
	// validate string durations
	if _, err := time.ParseDuration(c.Dispatch.Pace); err != nil {
		return fmt.Errorf("config: dispatch.pace: %w", err)
	}
	if _, err := time.ParseDuration(c.Storage.Postgres.ConnMaxLifetime); err != nil {
		return fmt.Errorf("config: storage.postgres.conn_max_lifetime: %w", err)
	}
	if _, err := time.ParseDuration(c.Rate.Send.Window); err != nil {
		return fmt.Errorf("config: rate.send.window: %w", err)
	}

	switch c.Rate.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: rate.backend desconocido: %q", c.Rate.Backend)
	}
	return nil
}

// PaceDuration retorna dispatch.pace ya parseado (Validate garantiza que parsea).
func (c *Config) PaceDuration() time.Duration {
	d, _ := time.ParseDuration(c.Dispatch.Pace)
	return d
}

// SendWindow retorna rate.send.window ya parseado.
func (c *Config) SendWindow() time.Duration {
	d, _ := time.ParseDuration(c.Rate.Send.Window)
	return d
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		if strings.TrimSpace(s) == "" {
			return []string{}, true
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}
