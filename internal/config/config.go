package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "PLANNER"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Store    StoreConfig    `mapstructure:"store"`
	Auth     AuthConfig     `mapstructure:"auth"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Limits   LimitsConfig   `mapstructure:"limits"`
	Shutdown ShutdownConfig `mapstructure:"shutdown"`
	Health   HealthConfig   `mapstructure:"health"`
	Log      LogConfig      `mapstructure:"log"`
	Otel     OtelConfig     `mapstructure:"otel"`
}

type ServerConfig struct {
	Addr      string `mapstructure:"addr"`
	Port      string `mapstructure:"port"`
	PublicDir string `mapstructure:"public_dir"`
}

type BackendConfig struct {
	Kind     string         `mapstructure:"kind"`
	Disk     DiskConfig     `mapstructure:"disk"`
	GitHub   GitHubConfig   `mapstructure:"github"`
	S3       S3Config       `mapstructure:"s3"`
	Supabase SupabaseConfig `mapstructure:"supabase"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Memory   MemoryConfig   `mapstructure:"memory"`
	Breaker  BreakerConfig  `mapstructure:"breaker"`
	HTTP     HTTPConfig     `mapstructure:"http"`
}

type DiskConfig struct {
	Root string `mapstructure:"root"`
}

type GitHubConfig struct {
	Repo      string `mapstructure:"repo"`
	Branch    string `mapstructure:"branch"`
	Token     string `mapstructure:"token"`
	DirPrefix string `mapstructure:"dir_prefix"`
	BaseURL   string `mapstructure:"base_url"`
}

type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	PathStyle bool   `mapstructure:"path_style"`
}

type SupabaseConfig struct {
	URL    string `mapstructure:"url"`
	Bucket string `mapstructure:"bucket"`
	Key    string `mapstructure:"key"`
}

type SQLiteConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	DB        int    `mapstructure:"db"`
	Password  string `mapstructure:"password"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type MemoryConfig struct {
	ReadLag int `mapstructure:"read_lag"`
}

// BreakerConfig guards the remote backends (github, s3, supabase, redis).
type BreakerConfig struct {
	Enabled            bool `mapstructure:"enabled"`
	FailureRatePercent int  `mapstructure:"failure_rate_percent"`
	MinimumRequests    int  `mapstructure:"minimum_requests"`
	WindowMS           int  `mapstructure:"window_ms"`
	OpenMS             int  `mapstructure:"open_ms"`
	HalfOpenProbes     int  `mapstructure:"half_open_probes"`
}

// HTTPConfig shapes the outbound client of the REST backends.
type HTTPConfig struct {
	TimeoutMS               int `mapstructure:"timeout_ms"`
	DialTimeoutMS           int `mapstructure:"dial_timeout_ms"`
	ResponseHeaderTimeoutMS int `mapstructure:"response_header_timeout_ms"`
	MaxIdleConnsPerHost     int `mapstructure:"max_idle_conns_per_host"`
}

type StoreConfig struct {
	CacheTTLMS         int   `mapstructure:"cache_ttl_ms"`
	MaxObjectBytes     int64 `mapstructure:"max_object_bytes"`
	ReadTimeoutMS      int   `mapstructure:"read_timeout_ms"`
	WriteTimeoutMS     int   `mapstructure:"write_timeout_ms"`
	VerifyBaseMS       int   `mapstructure:"verify_base_ms"`
	VerifyMaxMS        int   `mapstructure:"verify_max_ms"`
	VerifyBudgetMS     int   `mapstructure:"verify_budget_ms"`
	VerifyThroughCache bool  `mapstructure:"verify_through_cache"`
	LockWrites         bool  `mapstructure:"lock_writes"`
}

type AuthConfig struct {
	UsersJSON     string `mapstructure:"users_json"`
	SessionSecret string `mapstructure:"session_secret"`
	SessionTTLMS  int    `mapstructure:"session_ttl_ms"`
	CookieSecure  bool   `mapstructure:"cookie_secure"`
	OpenWrites    bool   `mapstructure:"open_writes"`
	LoginRPS      int    `mapstructure:"login_rps"`
	LoginBurst    int    `mapstructure:"login_burst"`
	MaxFailures   int    `mapstructure:"max_failures"`
	BlockMS       int    `mapstructure:"block_ms"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LimitsConfig struct {
	MaxHeaderBytes      int   `mapstructure:"max_header_bytes"`
	MaxBodyBytes        int64 `mapstructure:"max_body_bytes"`
	ReadHeaderTimeoutMS int   `mapstructure:"read_header_timeout_ms"`
	ReadTimeoutMS       int   `mapstructure:"read_timeout_ms"`
	WriteTimeoutMS      int   `mapstructure:"write_timeout_ms"`
	IdleTimeoutMS       int   `mapstructure:"idle_timeout_ms"`
	MaxInflight         int   `mapstructure:"max_inflight"`
	MaxQueue            int   `mapstructure:"max_queue"`
	QueueTimeoutMS      int   `mapstructure:"queue_timeout_ms"`
}

type ShutdownConfig struct {
	DrainMS           int `mapstructure:"drain_ms"`
	GracefulTimeoutMS int `mapstructure:"graceful_timeout_ms"`
	ForceCloseMS      int `mapstructure:"force_close_ms"`
}

type HealthConfig struct {
	IntervalMS int    `mapstructure:"interval_ms"`
	TimeoutMS  int    `mapstructure:"timeout_ms"`
	GRPCAddr   string `mapstructure:"grpc_addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type OtelConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

type LoadOptions struct {
	ConfigFile string
	EnvFile    string
}

// aliases maps config keys to the plain environment names earlier
// deployments used. The PLANNER_ prefixed name always wins.
var aliases = map[string][]string{
	"server.port":               {"PORT"},
	"backend.github.repo":       {"GITHUB_REPO"},
	"backend.github.branch":     {"GITHUB_BRANCH"},
	"backend.github.token":      {"GITHUB_TOKEN"},
	"backend.github.dir_prefix": {"GITHUB_DIR_PREFIX"},
	"backend.supabase.url":      {"SUPABASE_URL"},
	"backend.supabase.bucket":   {"SUPABASE_BUCKET"},
	"backend.supabase.key":      {"SUPABASE_SERVICE_ROLE", "SUPABASE_SERVICE_ROLE_KEY", "SUPABASE_ANON_KEY"},
	"backend.s3.endpoint":       {"S3_ENDPOINT"},
	"backend.s3.region":         {"S3_REGION"},
	"backend.s3.bucket":         {"S3_BUCKET"},
	"backend.s3.access_key":     {"S3_ACCESS_KEY"},
	"backend.s3.secret_key":     {"S3_SECRET_KEY"},
	"auth.users_json":           {"USERS_JSON"},
	"auth.session_secret":       {"FLASK_SECRET_KEY"},
}

func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "")
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.public_dir", "public")

	v.SetDefault("backend.kind", "disk")
	v.SetDefault("backend.disk.root", "public")
	v.SetDefault("backend.github.branch", "main")
	v.SetDefault("backend.github.dir_prefix", "public/")
	v.SetDefault("backend.github.base_url", "https://api.github.com")
	v.SetDefault("backend.s3.region", "us-east-1")
	v.SetDefault("backend.s3.use_ssl", true)
	v.SetDefault("backend.s3.path_style", true)
	v.SetDefault("backend.supabase.bucket", "planny-txt")
	v.SetDefault("backend.sqlite.dsn", "file:planner.db?_pragma=busy_timeout(5000)")
	v.SetDefault("backend.redis.addr", "localhost:6379")
	v.SetDefault("backend.redis.key_prefix", "planner:file:")
	v.SetDefault("backend.memory.read_lag", 0)
	v.SetDefault("backend.breaker.enabled", true)
	v.SetDefault("backend.breaker.failure_rate_percent", 50)
	v.SetDefault("backend.breaker.minimum_requests", 5)
	v.SetDefault("backend.breaker.window_ms", 10000)
	v.SetDefault("backend.breaker.open_ms", 15000)
	v.SetDefault("backend.breaker.half_open_probes", 1)
	v.SetDefault("backend.http.timeout_ms", 30000)
	v.SetDefault("backend.http.dial_timeout_ms", 5000)
	v.SetDefault("backend.http.response_header_timeout_ms", 20000)
	v.SetDefault("backend.http.max_idle_conns_per_host", 16)

	v.SetDefault("store.cache_ttl_ms", 120000)
	v.SetDefault("store.max_object_bytes", 10*1024*1024)
	v.SetDefault("store.read_timeout_ms", 20000)
	v.SetDefault("store.write_timeout_ms", 30000)
	v.SetDefault("store.verify_base_ms", 50)
	v.SetDefault("store.verify_max_ms", 400)
	v.SetDefault("store.verify_budget_ms", 1600)
	v.SetDefault("store.verify_through_cache", false)
	v.SetDefault("store.lock_writes", true)

	v.SetDefault("auth.users_json", "{}")
	v.SetDefault("auth.session_secret", "change-me")
	v.SetDefault("auth.session_ttl_ms", 12*60*60*1000)
	v.SetDefault("auth.cookie_secure", false)
	v.SetDefault("auth.open_writes", false)
	v.SetDefault("auth.login_rps", 5)
	v.SetDefault("auth.login_burst", 10)
	v.SetDefault("auth.max_failures", 20)
	v.SetDefault("auth.block_ms", 10*60*1000)

	v.SetDefault("cors.allowed_origins", []string{"*"})

	v.SetDefault("limits.max_header_bytes", 64*1024)
	v.SetDefault("limits.max_body_bytes", 10*1024*1024)
	v.SetDefault("limits.read_header_timeout_ms", 2000)
	v.SetDefault("limits.read_timeout_ms", 0)
	v.SetDefault("limits.write_timeout_ms", 0)
	v.SetDefault("limits.idle_timeout_ms", 30000)
	v.SetDefault("limits.max_inflight", 64)
	v.SetDefault("limits.max_queue", 128)
	v.SetDefault("limits.queue_timeout_ms", 2000)

	v.SetDefault("shutdown.drain_ms", 0)
	v.SetDefault("shutdown.graceful_timeout_ms", 5000)
	v.SetDefault("shutdown.force_close_ms", 0)

	v.SetDefault("health.interval_ms", 30000)
	v.SetDefault("health.timeout_ms", 5000)
	v.SetDefault("health.grpc_addr", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.service_name", "planner")
}

// Load reads defaults, an optional config file, an optional .env file and
// the environment, in increasing order of precedence.
func Load(opts LoadOptions) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	} else if opts.EnvFile != "" {
		return nil, fmt.Errorf("env file %s: %w", opts.EnvFile, err)
	}

	v := viper.New()
	setDefaults(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", opts.ConfigFile, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range aliases {
		bind := append([]string{key, envName(key)}, names...)
		if err := v.BindEnv(bind...); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.CORS.AllowedOrigins = splitList(cfg.CORS.AllowedOrigins)
	return &cfg, nil
}

// ListenAddr prefers an explicit address over the bare port.
func (c *Config) ListenAddr() string {
	if c == nil {
		return ""
	}
	if addr := strings.TrimSpace(c.Server.Addr); addr != "" {
		return addr
	}
	port := strings.TrimSpace(c.Server.Port)
	if port == "" {
		port = "8000"
	}
	return ":" + port
}

func (c *Config) String() string {
	if c == nil {
		return "<nil>"
	}
	var sb strings.Builder
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "  Listen: %s\n", c.ListenAddr())
	fmt.Fprintf(&sb, "  PublicDir: %s\n", c.Server.PublicDir)
	fmt.Fprintf(&sb, "  Backend: %s\n", c.Backend.Kind)
	switch strings.ToLower(c.Backend.Kind) {
	case "disk":
		fmt.Fprintf(&sb, "  DiskRoot: %s\n", c.Backend.Disk.Root)
	case "github":
		fmt.Fprintf(&sb, "  GitHubRepo: %s\n", c.Backend.GitHub.Repo)
		fmt.Fprintf(&sb, "  GitHubBranch: %s\n", c.Backend.GitHub.Branch)
		fmt.Fprintf(&sb, "  GitHubDirPrefix: %s\n", c.Backend.GitHub.DirPrefix)
		fmt.Fprintf(&sb, "  GitHubToken: %s\n", mask(c.Backend.GitHub.Token))
	case "s3":
		fmt.Fprintf(&sb, "  S3Endpoint: %s\n", c.Backend.S3.Endpoint)
		fmt.Fprintf(&sb, "  S3Bucket: %s\n", c.Backend.S3.Bucket)
		fmt.Fprintf(&sb, "  S3AccessKey: %s\n", mask(c.Backend.S3.AccessKey))
		fmt.Fprintf(&sb, "  S3SecretKey: %s\n", mask(c.Backend.S3.SecretKey))
	case "supabase":
		fmt.Fprintf(&sb, "  SupabaseURL: %s\n", c.Backend.Supabase.URL)
		fmt.Fprintf(&sb, "  SupabaseBucket: %s\n", c.Backend.Supabase.Bucket)
		fmt.Fprintf(&sb, "  SupabaseKey: %s\n", mask(c.Backend.Supabase.Key))
	case "sqlite":
		fmt.Fprintf(&sb, "  SQLiteDSN: %s\n", c.Backend.SQLite.DSN)
	case "redis":
		fmt.Fprintf(&sb, "  RedisAddr: %s\n", c.Backend.Redis.Addr)
		fmt.Fprintf(&sb, "  RedisPassword: %s\n", mask(c.Backend.Redis.Password))
	case "memory":
		fmt.Fprintf(&sb, "  MemoryReadLag: %d\n", c.Backend.Memory.ReadLag)
	}
	fmt.Fprintf(&sb, "  CacheTTLMS: %d\n", c.Store.CacheTTLMS)
	fmt.Fprintf(&sb, "  VerifyBudgetMS: %d\n", c.Store.VerifyBudgetMS)
	fmt.Fprintf(&sb, "  VerifyThroughCache: %v\n", c.Store.VerifyThroughCache)
	fmt.Fprintf(&sb, "  SessionSecret: %s\n", mask(c.Auth.SessionSecret))
	fmt.Fprintf(&sb, "  OpenWrites: %v\n", c.Auth.OpenWrites)
	fmt.Fprintf(&sb, "  LogLevel: %s\n", c.Log.Level)
	return sb.String()
}

func envName(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func mask(secret string) string {
	if secret == "" {
		return "(empty)"
	}
	return "********"
}

// splitList accepts both a real list and a single comma separated value,
// which is what an environment variable yields.
func splitList(values []string) []string {
	out := []string{}
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
