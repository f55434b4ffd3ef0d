package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the operator service.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Jobs     JobsConfig
	Cluster  ClusterConfig
	Results  ResultsConfig
}

type ServerConfig struct {
	Port               int
	Env                string
	Address            string
	Version            string
	RateLimitPerMinute int
	TrustProxy         bool
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL             string
	EnvironmentsTTL time.Duration
}

// AuthConfig controls request signature checks and the admin gate.
type AuthConfig struct {
	SignatureRequired bool
	AllowedProviders  []string
	AllowedAdmins     []string
}

// JobsConfig carries the defaults applied to admitted workflows.
type JobsConfig struct {
	AlgoPodTimeout   int64
	StorageExpiry    int64
	DefaultNamespace string
	AnnounceLimit    int
	Resources        map[string]string
}

type ClusterConfig struct {
	Kubeconfig string
	Group      string
	Version    string
	Plural     string
	Dispatch   string
}

type ResultsConfig struct {
	FetchTimeout time.Duration
	IPFSAPIKey   string
	IPFSClientID string
	S3           S3Config
}

type S3Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
}

const (
	DispatchStore  = "store"
	DispatchInline = "inline"
)

// resourceDefaults are the compute resource keys filled in on admitted
// workflows, with their fallbacks.
var resourceDefaults = map[string]string{
	"inputVolumesize":     "1Gi",
	"outputVolumesize":    "1Gi",
	"adminlogsVolumesize": "1Gi",
	"requests_cpu":        "200m",
	"requests_memory":     "100Mi",
	"limits_cpu":          "1",
	"limits_memory":       "500Mi",
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	providers, err := envAddressList("ALLOWED_PROVIDERS")
	if err != nil {
		return nil, err
	}
	admins, err := envAddressList("ALLOWED_ADMINS")
	if err != nil {
		return nil, err
	}

	resources := make(map[string]string, len(resourceDefaults))
	for k, def := range resourceDefaults {
		resources[k] = envString(k, def)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:               envInt("OPERATOR_PORT", 8050),
			Env:                envString("OPERATOR_ENV", "development"),
			Address:            os.Getenv("OPERATOR_ADDRESS"),
			Version:            envString("OPERATOR_VERSION", "dev"),
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 600),
			TrustProxy:         envBool("TRUSTED_PROXY", false),
		},
		Database: DatabaseConfig{
			URL:             databaseURL(),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:             os.Getenv("REDIS_URL"),
			EnvironmentsTTL: envDuration("ENVIRONMENTS_CACHE_TTL", 30*time.Second),
		},
		Auth: AuthConfig{
			SignatureRequired: envBool("SIGNATURE_REQUIRED", false),
			AllowedProviders:  providers,
			AllowedAdmins:     admins,
		},
		Jobs: JobsConfig{
			AlgoPodTimeout:   int64(envInt("ALGO_POD_TIMEOUT", 3600)),
			StorageExpiry:    int64(envInt("STORAGE_EXPIRY", 604800)),
			DefaultNamespace: envString("DEFAULT_NAMESPACE", "ocean-compute"),
			AnnounceLimit:    envInt("ANNOUNCE_LIMIT", 10),
			Resources:        resources,
		},
		Cluster: ClusterConfig{
			Kubeconfig: os.Getenv("KUBECONFIG"),
			Group:      envString("WORKFLOW_GROUP", "oceanprotocol.com"),
			Version:    envString("WORKFLOW_VERSION", "v1alpha"),
			Plural:     envString("WORKFLOW_PLURAL", "workflows"),
			Dispatch:   envString("CLUSTER_DISPATCH", DispatchStore),
		},
		Results: ResultsConfig{
			FetchTimeout: envDuration("RESULT_FETCH_TIMEOUT", 3*time.Second),
			IPFSAPIKey:   os.Getenv("X-API-KEY"),
			IPFSClientID: os.Getenv("CLIENT-ID"),
			S3: S3Config{
				Region:          envString("RESULTS_S3_REGION", "us-east-1"),
				Endpoint:        os.Getenv("RESULTS_S3_ENDPOINT"),
				AccessKeyID:     os.Getenv("RESULTS_S3_ACCESS_KEY_ID"),
				SecretAccessKey: os.Getenv("RESULTS_S3_SECRET_ACCESS_KEY"),
				ForcePathStyle:  envBool("RESULTS_S3_FORCE_PATH_STYLE", false),
			},
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL or POSTGRES_HOST is required")
	}

	if c.Redis.URL != "" && !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("REDIS_URL must start with redis:// or rediss://, got %q", c.Redis.URL)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("OPERATOR_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Auth.SignatureRequired && len(c.Auth.AllowedProviders) == 0 {
		return fmt.Errorf("ALLOWED_PROVIDERS is required when SIGNATURE_REQUIRED is 1")
	}

	if c.Cluster.Dispatch != DispatchStore && c.Cluster.Dispatch != DispatchInline {
		return fmt.Errorf("CLUSTER_DISPATCH must be one of store, inline; got %q", c.Cluster.Dispatch)
	}

	if c.Jobs.AnnounceLimit <= 0 {
		return fmt.Errorf("ANNOUNCE_LIMIT must be positive, got %d", c.Jobs.AnnounceLimit)
	}

	if c.Results.FetchTimeout <= 0 {
		return fmt.Errorf("RESULT_FETCH_TIMEOUT must be positive, got %s", c.Results.FetchTimeout)
	}

	return nil
}

// databaseURL prefers DATABASE_URL and otherwise assembles one from the
// POSTGRES_* variables.
func databaseURL() string {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v
	}
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(envString("POSTGRES_USER", "postgres"), os.Getenv("POSTGRES_PASSWORD")),
		Host:   fmt.Sprintf("%s:%s", host, envString("POSTGRES_PORT", "5432")),
		Path:   "/" + envString("POSTGRES_DB", "postgres"),
	}
	return u.String()
}

// envAddressList parses a JSON array of addresses and lowercases them.
func envAddressList(key string) ([]string, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(v), &list); err != nil {
		return nil, fmt.Errorf("%s must be a JSON array of addresses: %w", key, err)
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			out = append(out, a)
		}
	}
	return out, nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
