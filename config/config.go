package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the research swarm.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Swarm     SwarmConfig     `mapstructure:"swarm"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// GatewayConfig configures the LLM boundary.
type GatewayConfig struct {
	Provider       string        `mapstructure:"provider"` // genai
	APIKey         string        `mapstructure:"api_key"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	Timeout        time.Duration `mapstructure:"timeout"`
	Routing        RoutingConfig `mapstructure:"routing"`
}

// RoutingConfig names which model handles each stage.
type RoutingConfig struct {
	Quick       string `mapstructure:"quick"`       // quick-answer short circuit
	Intent      string `mapstructure:"intent"`      // intent classification
	Clarify     string `mapstructure:"clarify"`     // clarification questions
	Planning    string `mapstructure:"planning"`    // plan creation and refinement
	Advisor     string `mapstructure:"advisor"`     // plan scorecards
	Evaluation  string `mapstructure:"evaluation"`  // research continuation decisions
	Synthesis   string `mapstructure:"synthesis"`   // report composition
	Review      string `mapstructure:"review"`      // output audit
	Arbitration string `mapstructure:"arbitration"` // verdicts
	Expert      string `mapstructure:"expert"`      // expert sessions
	Fallback    string `mapstructure:"fallback"`
}

// Model returns name, or the fallback when name is empty.
func (r RoutingConfig) Model(name string) string {
	if name != "" {
		return name
	}
	return r.Fallback
}

// SwarmConfig bounds the orchestration loops.
type SwarmConfig struct {
	MaxResearchRounds    int           `mapstructure:"max_research_rounds"`    // total execution rounds (initial + pivots)
	MaxDebateRounds      int           `mapstructure:"max_debate_rounds"`      // reviewer/arbiter argument round-trips
	MaxRemediationCycles int           `mapstructure:"max_remediation_cycles"` // shared incremental/restart budget
	RefineMinScore       int           `mapstructure:"refine_min_score"`       // advisor gate threshold
	ReviseRejectedPlans  bool          `mapstructure:"revise_rejected_plans"`  // re-run advisor gate after a rejection
	BriefingURLs         []string      `mapstructure:"briefing_urls"`
	URLFetchTimeout      time.Duration `mapstructure:"url_fetch_timeout"`
}

func (s SwarmConfig) Validate() error {
	if s.MaxResearchRounds < 1 {
		return fmt.Errorf("swarm.max_research_rounds must be >= 1")
	}
	if s.MaxDebateRounds < 0 {
		return fmt.Errorf("swarm.max_debate_rounds must be >= 0")
	}
	if s.MaxRemediationCycles < 0 {
		return fmt.Errorf("swarm.max_remediation_cycles must be >= 0")
	}
	if s.RefineMinScore < 1 || s.RefineMinScore > 5 {
		return fmt.Errorf("swarm.refine_min_score must be in 1..5")
	}
	return nil
}

// TelemetryConfig contains monitoring settings.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// StorageConfig contains persistence settings.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig configures the run archive.
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds the connection string, preferring the explicit URL.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	host := p.Host
	if host == "" {
		host = "localhost"
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, host, port, p.DBName, ssl)
}

// Configured reports whether any Postgres connection detail was supplied.
func (p PostgresConfig) Configured() bool {
	return p.URL != "" || p.Host != "" || p.DBName != ""
}

// RedisConfig configures the live run-state repository.
type RedisConfig struct {
	Host      string        `mapstructure:"host"`
	Port      string        `mapstructure:"port"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	StatusTTL time.Duration `mapstructure:"status_ttl"`
}

// Configured reports whether Redis was supplied.
func (r RedisConfig) Configured() bool { return r.Host != "" }

// LoadConfig loads config from file, with DOCSER_* env overrides. A missing
// file is tolerated when no explicit path was given; defaults apply.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.default_timeout", "120s")
	viper.SetDefault("server.address", ":10010")
	viper.SetDefault("gateway.provider", "genai")
	viper.SetDefault("gateway.max_retries", 3)
	viper.SetDefault("gateway.retry_base_delay", "1s")
	viper.SetDefault("gateway.timeout", "120s")
	viper.SetDefault("gateway.routing.quick", "gemini-2.5-flash")
	viper.SetDefault("gateway.routing.intent", "gemini-2.5-flash")
	viper.SetDefault("gateway.routing.clarify", "gemini-2.5-flash")
	viper.SetDefault("gateway.routing.planning", "gemini-2.5-pro")
	viper.SetDefault("gateway.routing.advisor", "gemini-2.5-flash")
	viper.SetDefault("gateway.routing.evaluation", "gemini-2.5-flash")
	viper.SetDefault("gateway.routing.synthesis", "gemini-2.5-pro")
	viper.SetDefault("gateway.routing.review", "gemini-2.5-flash")
	viper.SetDefault("gateway.routing.arbitration", "gemini-2.5-pro")
	viper.SetDefault("gateway.routing.expert", "gemini-2.5-flash")
	viper.SetDefault("gateway.routing.fallback", "gemini-2.5-flash")
	viper.SetDefault("swarm.max_research_rounds", 5)
	viper.SetDefault("swarm.max_debate_rounds", 2)
	viper.SetDefault("swarm.max_remediation_cycles", 4)
	viper.SetDefault("swarm.refine_min_score", 4)
	viper.SetDefault("swarm.revise_rejected_plans", true)
	viper.SetDefault("swarm.url_fetch_timeout", "15s")
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.service_name", "docser")
	viper.SetDefault("storage.redis.status_ttl", "24h")

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("DOCSER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound || path != "" {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	if config.Gateway.APIKey == "" {
		config.Gateway.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if err := config.Swarm.Validate(); err != nil {
		panic(err)
	}
	return &config
}
