package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode      Mode            `mapstructure:"mode"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	DB        DBConfig        `mapstructure:"db"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Grading   GradingConfig   `mapstructure:"grading"`
	Review    ReviewConfig    `mapstructure:"review"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Gradebook GradebookConfig `mapstructure:"gradebook"`
	Log       LogConfig       `mapstructure:"log"`
}

type HTTPConfig struct {
	Addr               string        `mapstructure:"addr"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	CORSOriginsOnline  []string      `mapstructure:"cors_origins_online"`
	CORSOriginsOffline []string      `mapstructure:"cors_origins_offline"`
}

// CORSOrigins picks the origin list for the current mode.
func (c Config) CORSOrigins() []string {
	if c.Mode == ModeOnline {
		return c.HTTP.CORSOriginsOnline
	}
	return c.HTTP.CORSOriginsOffline
}

type DBConfig struct {
	Driver string `mapstructure:"driver"` // sqlite|postgres
	DSN    string `mapstructure:"dsn"`
}

type AuthConfig struct {
	HMACSecret      string        `mapstructure:"hmac_secret"`
	TokenTTL        time.Duration `mapstructure:"token_ttl"`
	EnableLocalAuth bool          `mapstructure:"enable_local_auth"`
	AdminUser       string        `mapstructure:"admin_user"`
	AdminPassHash   string        `mapstructure:"admin_pass_hash"` // bcrypt
}

type GradingConfig struct {
	Workers int `mapstructure:"workers"` // 0 = GOMAXPROCS
}

type ReviewConfig struct {
	AutoClaim bool `mapstructure:"auto_claim"`
}

type NotifyConfig struct {
	// Drivers is any of log, redis, eventlog, gradebook; several fan out.
	Drivers       []string `mapstructure:"drivers"`
	RedisAddr     string   `mapstructure:"redis_addr"`
	RedisPassword string   `mapstructure:"redis_password"`
	RedisDB       int      `mapstructure:"redis_db"`
	Channel       string   `mapstructure:"channel"`
	SiteID        string   `mapstructure:"site_id"`
}

// GradebookConfig holds the OAuth2 client the platform issued for score
// passback. Used when notify.drivers contains "gradebook".
type GradebookConfig struct {
	TokenURL     string        `mapstructure:"token_url"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	Scopes       []string      `mapstructure:"scopes"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json|console; empty follows mode
	File   string `mapstructure:"file"`   // optional rotated JSON file
}

// legacy env names kept working next to the GRADING_ prefixed ones
var envAliases = map[string]string{
	"mode":                      "MODE",
	"http.addr":                 "HTTP_ADDR",
	"http.cors_origins_online":  "CORS_ORIGINS_ONLINE",
	"http.cors_origins_offline": "CORS_ORIGINS_OFFLINE",
	"db.driver":                 "DB_DRIVER",
	"db.dsn":                    "DB_DSN",
	"auth.hmac_secret":          "JWT_SECRET",
	"auth.enable_local_auth":    "ENABLE_LOCAL_AUTH",
	"auth.admin_user":           "ADMIN_USER",
	"auth.admin_pass_hash":      "ADMIN_PASS_HASH",
	"notify.redis_addr":         "REDIS_ADDR",
	"notify.redis_password":     "REDIS_PASSWORD",
	"gradebook.client_secret":   "AGS_CLIENT_SECRET",
	"log.level":                 "LOG_LEVEL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", string(ModeOffline))
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.request_timeout", 30*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.cors_origins_online", []string{"https://lms.mindengage.ai"})
	v.SetDefault("http.cors_origins_offline", []string{"http://localhost:3000", "http://localhost:3010", "http://localhost:3020"})
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "")
	v.SetDefault("auth.hmac_secret", "dev-secret-change-me")
	v.SetDefault("auth.token_ttl", 12*time.Hour)
	v.SetDefault("auth.enable_local_auth", true)
	v.SetDefault("auth.admin_user", "admin")
	v.SetDefault("auth.admin_pass_hash", "")
	v.SetDefault("grading.workers", 0)
	v.SetDefault("review.auto_claim", false)
	v.SetDefault("notify.drivers", []string{"log"})
	v.SetDefault("notify.redis_addr", "localhost:6379")
	v.SetDefault("notify.redis_password", "")
	v.SetDefault("notify.redis_db", 0)
	v.SetDefault("notify.channel", "grading.events")
	v.SetDefault("notify.site_id", "local")
	v.SetDefault("gradebook.token_url", "")
	v.SetDefault("gradebook.client_id", "")
	v.SetDefault("gradebook.client_secret", "")
	v.SetDefault("gradebook.scopes", []string{})
	v.SetDefault("gradebook.timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "")
	v.SetDefault("log.file", "")
}

// Loader reads config.yaml (optional) from the given directory, "." and
// "./configs", then applies GRADING_* and legacy environment overrides.
type Loader struct {
	v *viper.Viper
}

func NewLoader(dir string) *Loader {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	v.SetEnvPrefix("GRADING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range envAliases {
		prefixed := "GRADING_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, prefixed, legacy)
	}
	setDefaults(v)
	return &Loader{v: v}
}

func (l *Loader) Load() (Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	return l.decode()
}

// File is the config file in use, or "" when running on env and defaults.
func (l *Loader) File() string { return l.v.ConfigFileUsed() }

// Watch calls fn with the new config whenever the config file changes.
// Invalid edits are reported to onErr and otherwise ignored.
func (l *Loader) Watch(fn func(Config), onErr func(error)) {
	if l.File() == "" {
		return
	}
	l.v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := l.decode()
		if err != nil {
			if onErr != nil {
				onErr(err)
			}
			return
		}
		fn(cfg)
	})
	l.v.WatchConfig()
}

func (l *Loader) decode() (Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load is NewLoader(dir).Load().
func Load(dir string) (Config, error) { return NewLoader(dir).Load() }

func (c Config) validate() error {
	switch c.Mode {
	case ModeOffline, ModeOnline:
	default:
		return fmt.Errorf("config: mode %q must be offline or online", c.Mode)
	}
	switch c.DB.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: db.driver %q must be sqlite or postgres", c.DB.Driver)
	}
	if c.Mode == ModeOnline && len(c.Auth.HMACSecret) < 32 {
		return fmt.Errorf("config: auth.hmac_secret is %d chars, online mode needs at least 32", len(c.Auth.HMACSecret))
	}
	if c.Grading.Workers < 0 {
		return fmt.Errorf("config: grading.workers must not be negative")
	}
	for _, d := range c.Notify.Drivers {
		switch d {
		case "log", "redis", "eventlog":
		case "gradebook":
			if c.Gradebook.TokenURL == "" || c.Gradebook.ClientID == "" {
				return fmt.Errorf("config: gradebook driver needs gradebook.token_url and gradebook.client_id")
			}
		default:
			return fmt.Errorf("config: unknown notify driver %q", d)
		}
	}
	return nil
}
