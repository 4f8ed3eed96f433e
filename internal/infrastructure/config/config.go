package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/erp/weclapp-migration/internal/domain/migration"
)

// EnvPrefix is the prefix of every environment override, e.g. WECLAPP_MIGRATION_WECLAPP_TOKEN
const EnvPrefix = "WECLAPP_MIGRATION"

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Log       LogConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	WeClapp   WeClappConfig
	Cache     CacheConfig
	Storage   StorageConfig
	Migration MigrationConfig
	HTTP      HTTPConfig
	Jobs      JobsConfig
	Swagger   SwaggerConfig
	Telemetry TelemetryConfig
	Profiling ProfilingConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string `validate:"required"`
	Env  string `validate:"oneof=development testing production"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string `validate:"oneof=json console"`
	Output string // stdout, stderr, or file path
}

// DatabaseConfig holds destination store connection settings
type DatabaseConfig struct {
	Driver          string `validate:"oneof=postgres sqlite"`
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	Path            string // sqlite file
	MaxOpenConns    int    `validate:"gt=0"`
	MaxIdleConns    int    `validate:"gte=0"`
	ConnMaxLifetime int    // in minutes
	ConnMaxIdleTime int    // in minutes
	LogLevel        string // silent, error, warn, info
}

// RedisConfig holds the job lock backend settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// WeClappConfig holds WeClapp REST API settings
type WeClappConfig struct {
	APIBase      string `validate:"omitempty,url"`
	Token        string
	PageSize     int           `validate:"gt=0,lte=1000"`
	Timeout      time.Duration `validate:"gt=0"`
	Doctypes     []string      `validate:"min=1,dive,required"`
	MailDoctypes []string
}

// CacheConfig holds the local source cache settings
type CacheConfig struct {
	Dir string `validate:"required"`
}

// StorageConfig holds attachment blob storage settings
type StorageConfig struct {
	Driver          string `validate:"oneof=local s3"`
	BasePath        string
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// MigrationConfig holds the defaults applied while transforming entities
type MigrationConfig struct {
	DefaultPhoneCountryCode string `validate:"required,numeric"`
	DefaultLanguage         string `validate:"required"`
	DefaultOpportunityType  string `validate:"required"`
	DefaultItemGroup        string `validate:"required"`
	DefaultLeadType         string `validate:"required"`
	TimeZone                string `validate:"required"`
	AttachmentRoot          string `validate:"required"`
}

// HTTPConfig holds job API server configuration
type HTTPConfig struct {
	Port         string `validate:"required,numeric"`
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	JWTSecret    string
	JWTIssuer    string
	MaxBodySize  int64 `validate:"gt=0"`
	// RateLimitRequests per RateLimitWindow and token subject; 0 disables
	RateLimitRequests int `validate:"gte=0"`
	RateLimitWindow   time.Duration
}

// JobsConfig holds job runner configuration
type JobsConfig struct {
	QueueSize  int           `validate:"gt=0"`
	JobTimeout time.Duration `validate:"gt=0"`
	LockTTL    time.Duration `validate:"gt=0"`
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64 `validate:"gte=0,lte=1"`
	ServiceName       string
	Insecure          bool
	DBTraceEnabled    bool
	// LogsEnabled also ships log entries to the collector
	LogsEnabled     bool
	MetricsInterval time.Duration
}

// SwaggerConfig holds access rules for the API documentation endpoint
type SwaggerConfig struct {
	Enabled     bool
	RequireAuth bool     // bearer token needed to read the docs
	AllowedIPs  []string // addresses or CIDR ranges, empty allows all
}

// ProfilingConfig holds Pyroscope continuous profiling settings
type ProfilingConfig struct {
	Enabled           bool
	ServerAddress     string
	BasicAuthUser     string
	BasicAuthPassword string
}

// Load loads configuration.
// Priority (highest to lowest):
// 1. Environment variables with WECLAPP_MIGRATION_ prefix, including those from .env
// 2. config.toml in the working directory, ./config or /etc/weclapp-migration
// 3. Built-in defaults
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/weclapp-migration")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			Path:            v.GetString("database.path"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			LogLevel:        v.GetString("database.log_level"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		WeClapp: WeClappConfig{
			APIBase:      v.GetString("weclapp.api_base"),
			Token:        v.GetString("weclapp.token"),
			PageSize:     v.GetInt("weclapp.page_size"),
			Timeout:      v.GetDuration("weclapp.timeout"),
			Doctypes:     v.GetStringSlice("weclapp.doctypes"),
			MailDoctypes: v.GetStringSlice("weclapp.mail_doctypes"),
		},
		Cache: CacheConfig{
			Dir: v.GetString("cache.dir"),
		},
		Storage: StorageConfig{
			Driver:          v.GetString("storage.driver"),
			BasePath:        v.GetString("storage.base_path"),
			Bucket:          v.GetString("storage.bucket"),
			Region:          v.GetString("storage.region"),
			Endpoint:        v.GetString("storage.endpoint"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			UsePathStyle:    v.GetBool("storage.use_path_style"),
		},
		Migration: MigrationConfig{
			DefaultPhoneCountryCode: v.GetString("migration.default_phone_country_code"),
			DefaultLanguage:         v.GetString("migration.default_language"),
			DefaultOpportunityType:  v.GetString("migration.default_opportunity_type"),
			DefaultItemGroup:        v.GetString("migration.default_item_group"),
			DefaultLeadType:         v.GetString("migration.default_lead_type"),
			TimeZone:                v.GetString("migration.time_zone"),
			AttachmentRoot:          v.GetString("migration.attachment_root"),
		},
		HTTP: HTTPConfig{
			Port:         v.GetString("http.port"),
			ReadTimeout:  v.GetDuration("http.read_timeout"),
			WriteTimeout: v.GetDuration("http.write_timeout"),
			JWTSecret:    v.GetString("http.jwt_secret"),
			JWTIssuer:    v.GetString("http.jwt_issuer"),
			MaxBodySize:  v.GetInt64("http.max_body_size"),

			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
		},
		Jobs: JobsConfig{
			QueueSize:  v.GetInt("jobs.queue_size"),
			JobTimeout: v.GetDuration("jobs.job_timeout"),
			LockTTL:    v.GetDuration("jobs.lock_ttl"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
		},
		Swagger: SwaggerConfig{
			Enabled:     v.GetBool("swagger.enabled"),
			RequireAuth: v.GetBool("swagger.require_auth"),
			AllowedIPs:  v.GetStringSlice("swagger.allowed_ips"),
		},
		Profiling: ProfilingConfig{
			Enabled:           v.GetBool("profiling.enabled"),
			ServerAddress:     v.GetString("profiling.server_address"),
			BasicAuthUser:     v.GetString("profiling.basic_auth_user"),
			BasicAuthPassword: v.GetString("profiling.basic_auth_password"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultDoctypes are the WeClapp entity types cached when none are configured
var DefaultDoctypes = []string{
	"article", "contact", "contract", "customer", "customerCategory", "lead", "leadSource",
	"opportunity", "quotation", "salesInvoice", "salesOrder", "sector", "ticket", "title", "unit", "user",
}

// DefaultMailDoctypes are the entity types whose archived emails are cached
var DefaultMailDoctypes = []string{"salesInvoice", "salesOrder", "quotation", "ticket"}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "weclapp-migration"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "erpnext"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "weclapp-migration.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 2
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.WeClapp.PageSize == 0 {
		cfg.WeClapp.PageSize = 100
	}
	if cfg.WeClapp.Timeout == 0 {
		cfg.WeClapp.Timeout = 60 * time.Second
	}
	if len(cfg.WeClapp.Doctypes) == 0 {
		cfg.WeClapp.Doctypes = append([]string(nil), DefaultDoctypes...)
	}
	if len(cfg.WeClapp.MailDoctypes) == 0 {
		cfg.WeClapp.MailDoctypes = append([]string(nil), DefaultMailDoctypes...)
	}
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = "private/weclapp_migration/cache"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "local"
	}
	if cfg.Storage.BasePath == "" {
		cfg.Storage.BasePath = "private/files"
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	defaults := migration.DefaultSettings()
	if cfg.Migration.DefaultPhoneCountryCode == "" {
		cfg.Migration.DefaultPhoneCountryCode = defaults.DefaultPhoneCountryCode
	}
	if cfg.Migration.DefaultLanguage == "" {
		cfg.Migration.DefaultLanguage = defaults.DefaultLanguage
	}
	if cfg.Migration.DefaultOpportunityType == "" {
		cfg.Migration.DefaultOpportunityType = defaults.DefaultOpportunityType
	}
	if cfg.Migration.DefaultItemGroup == "" {
		cfg.Migration.DefaultItemGroup = defaults.DefaultItemGroup
	}
	if cfg.Migration.DefaultLeadType == "" {
		cfg.Migration.DefaultLeadType = defaults.DefaultLeadType
	}
	if cfg.Migration.TimeZone == "" {
		cfg.Migration.TimeZone = "Europe/Berlin"
	}
	if cfg.Migration.AttachmentRoot == "" {
		cfg.Migration.AttachmentRoot = defaults.AttachmentRoot
	}
	if cfg.HTTP.Port == "" {
		cfg.HTTP.Port = "8080"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.JWTIssuer == "" {
		cfg.HTTP.JWTIssuer = "weclapp-migration"
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	if cfg.Jobs.QueueSize == 0 {
		cfg.Jobs.QueueSize = 16
	}
	if cfg.Jobs.JobTimeout == 0 {
		cfg.Jobs.JobTimeout = 6 * time.Hour
	}
	if cfg.Jobs.LockTTL == 0 {
		cfg.Jobs.LockTTL = cfg.Jobs.JobTimeout + time.Minute
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "weclapp-migration"
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 30 * time.Second
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid configuration: %s failed on %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if _, err := time.LoadLocation(c.Migration.TimeZone); err != nil {
		return fmt.Errorf("migration.time_zone %q: %w", c.Migration.TimeZone, err)
	}
	if c.Storage.Driver == "s3" && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required for the s3 driver")
	}

	if c.App.Env == "production" {
		if c.HTTP.JWTSecret == "" {
			return fmt.Errorf("http.jwt_secret is required in production")
		}
		if len(c.HTTP.JWTSecret) < 32 {
			return fmt.Errorf("http.jwt_secret must be at least 32 characters in production")
		}
		if c.Database.Driver == "postgres" && c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Swagger.Enabled && !c.Swagger.RequireAuth && len(c.Swagger.AllowedIPs) == 0 {
			return fmt.Errorf("swagger endpoint must be disabled, require authentication, or have IP restriction in production")
		}
	}
	return nil
}

// Settings converts the migration section into the engine settings value.
func (c *Config) Settings() (migration.Settings, error) {
	loc, err := time.LoadLocation(c.Migration.TimeZone)
	if err != nil {
		return migration.Settings{}, fmt.Errorf("load time zone %q: %w", c.Migration.TimeZone, err)
	}
	return migration.Settings{
		DefaultPhoneCountryCode: c.Migration.DefaultPhoneCountryCode,
		DefaultLanguage:         c.Migration.DefaultLanguage,
		DefaultOpportunityType:  c.Migration.DefaultOpportunityType,
		DefaultItemGroup:        c.Migration.DefaultItemGroup,
		DefaultLeadType:         c.Migration.DefaultLeadType,
		AttachmentRoot:          c.Migration.AttachmentRoot,
		PageSize:                c.WeClapp.PageSize,
		Location:                loc,
	}, nil
}

// DSN returns the postgres connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the redis address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
