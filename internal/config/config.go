package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/rewired-gh/solsignal/internal/calibration"
	"github.com/rewired-gh/solsignal/internal/models"
	"github.com/rewired-gh/solsignal/internal/pyth"
	"github.com/rewired-gh/solsignal/internal/signalgen"
)

// Config represents the complete application configuration
type Config struct {
	Ledger      LedgerConfig       `mapstructure:"ledger"`
	Agent       AgentConfig        `mapstructure:"agent"`
	Pyth        PythConfig         `mapstructure:"pyth"`
	Analyst     AnalystConfig      `mapstructure:"analyst"`
	SignalGen   signalgen.Config   `mapstructure:"signalgen"`
	Calibration calibration.Config `mapstructure:"calibration"`
	Resolver    ResolverConfig     `mapstructure:"resolver"`
	Relay       RelayConfig        `mapstructure:"relay"`
	Schedule    ScheduleConfig     `mapstructure:"schedule"`
	Telegram    TelegramConfig     `mapstructure:"telegram"`
	Storage     StorageConfig      `mapstructure:"storage"`
	Logging     LoggingConfig      `mapstructure:"logging"`
}

// LedgerConfig selects the account store. Writers always use the local
// SQLite ledger; RPCURL, when set, points the relay's read API at a
// deployed program instead.
type LedgerConfig struct {
	DBPath    string        `mapstructure:"db_path"`
	ProgramID string        `mapstructure:"program_id"`
	RPCURL    string        `mapstructure:"rpc_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// AgentConfig holds the publishing identity
type AgentConfig struct {
	KeypairPath  string `mapstructure:"keypair_path"`
	Name         string `mapstructure:"name"`
	AutoRegister bool   `mapstructure:"auto_register"`
}

// PythConfig holds Pyth Hermes configuration
type PythConfig struct {
	BaseURL string            `mapstructure:"base_url"`
	Timeout time.Duration     `mapstructure:"timeout"`
	MaxAge  time.Duration     `mapstructure:"max_age"` // 0 = accept any publish time
	Feeds   map[string]string `mapstructure:"feeds"`   // symbol -> feed id, merged over the built-in table
}

// AnalystConfig holds batch analyst behavior
type AnalystConfig struct {
	Assets       []string      `mapstructure:"assets"`
	PublishDelay time.Duration `mapstructure:"publish_delay"`
	FetchDelay   time.Duration `mapstructure:"fetch_delay"`
	DryRun       bool          `mapstructure:"dry_run"`
}

// ResolverConfig holds batch resolver behavior
type ResolverConfig struct {
	ResolveDelay time.Duration `mapstructure:"resolve_delay"`
	ExpireAfter  time.Duration `mapstructure:"expire_after"` // 0 = never expire
}

// RelayConfig holds the relay HTTP server configuration
type RelayConfig struct {
	Addr         string        `mapstructure:"addr"`
	MaxPerAgent  int           `mapstructure:"max_per_agent"`
	PublishDelay time.Duration `mapstructure:"publish_delay"`
	QueueSize    int           `mapstructure:"queue_size"`
	Network      string        `mapstructure:"network"`
}

// ScheduleConfig holds six-field cron specs; an empty spec disables the job
type ScheduleConfig struct {
	Analyst  string `mapstructure:"analyst"`
	Resolver string `mapstructure:"resolver"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	ExplorerURL    string        `mapstructure:"explorer_url"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath  string `mapstructure:"db_path"`
	MaxRuns int    `mapstructure:"max_runs"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	setDefaults(v)

	// SOLSIGNAL_TELEGRAM_BOT_TOKEN overrides telegram.bot_token
	v.SetEnvPrefix("SOLSIGNAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Config{
		SignalGen:   signalgen.DefaultConfig(),
		Calibration: calibration.DefaultConfig(),
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Ledger defaults
	v.SetDefault("ledger.db_path", "./data/ledger.db")
	v.SetDefault("ledger.program_id", "6TtRYmSVrymxprrKN1X6QJVho7qMqs1ayzucByNa7dXp")
	v.SetDefault("ledger.rpc_url", "")
	v.SetDefault("ledger.timeout", "30s")

	// Agent defaults
	v.SetDefault("agent.keypair_path", "./data/agent.json")
	v.SetDefault("agent.name", "solsignal-analyst")
	v.SetDefault("agent.auto_register", true)

	// Pyth defaults
	v.SetDefault("pyth.base_url", pyth.DefaultBaseURL)
	v.SetDefault("pyth.timeout", "10s")
	v.SetDefault("pyth.max_age", "0s")

	// Analyst defaults
	v.SetDefault("analyst.assets", []string{"SOL/USDC", "BTC/USDC", "ETH/USDC", "JUP/USDC", "BONK/USDC"})
	v.SetDefault("analyst.publish_delay", "2s")
	v.SetDefault("analyst.fetch_delay", "200ms")
	v.SetDefault("analyst.dry_run", false)

	// Resolver defaults
	v.SetDefault("resolver.resolve_delay", "500ms")
	v.SetDefault("resolver.expire_after", "0s")

	// Relay defaults
	v.SetDefault("relay.addr", ":3000")
	v.SetDefault("relay.max_per_agent", 10)
	v.SetDefault("relay.publish_delay", "2s")
	v.SetDefault("relay.queue_size", 100)
	v.SetDefault("relay.network", "devnet")

	// Schedule defaults
	v.SetDefault("schedule.analyst", "0 0 */4 * * *")
	v.SetDefault("schedule.resolver", "0 30 * * * *")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")
	v.SetDefault("telegram.explorer_url", "")

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/solsignal.db")
	v.SetDefault("storage.max_runs", 500)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Ledger config
	if c.Ledger.DBPath == "" {
		return fmt.Errorf("ledger.db_path is required")
	}
	if _, err := models.ParsePubkey(c.Ledger.ProgramID); err != nil {
		return fmt.Errorf("ledger.program_id: %w", err)
	}
	if c.Ledger.Timeout <= 0 {
		return fmt.Errorf("ledger.timeout must be positive")
	}

	// Validate Agent config
	if c.Agent.KeypairPath == "" {
		return fmt.Errorf("agent.keypair_path is required")
	}
	if c.Agent.Name == "" || len(c.Agent.Name) > models.MaxNameLen {
		return fmt.Errorf("agent.name must be 1 to %d bytes", models.MaxNameLen)
	}

	// Validate Pyth config
	if c.Pyth.BaseURL == "" {
		return fmt.Errorf("pyth.base_url is required")
	}
	if c.Pyth.Timeout <= 0 {
		return fmt.Errorf("pyth.timeout must be positive")
	}
	if c.Pyth.MaxAge < 0 {
		return fmt.Errorf("pyth.max_age must not be negative")
	}

	// Validate Analyst config
	if len(c.Analyst.Assets) == 0 {
		return fmt.Errorf("analyst.assets must contain at least one asset")
	}
	for _, a := range c.Analyst.Assets {
		if _, _, ok := pyth.SplitPair(a); !ok {
			return fmt.Errorf("analyst.assets: %q is not a BASE/QUOTE pair", a)
		}
		if len(a) > models.MaxAssetLen {
			return fmt.Errorf("analyst.assets: %q is longer than %d bytes", a, models.MaxAssetLen)
		}
	}
	if c.Analyst.PublishDelay < 0 || c.Analyst.FetchDelay < 0 {
		return fmt.Errorf("analyst delays must not be negative")
	}

	// Validate SignalGen config
	if c.SignalGen.MinPoints < 2 {
		return fmt.Errorf("signalgen.min_points must be at least 2")
	}
	if c.SignalGen.MaxCandidates < 1 {
		return fmt.Errorf("signalgen.max_candidates must be at least 1")
	}
	if c.SignalGen.DefaultConfidence < 0 || c.SignalGen.DefaultConfidence > models.MaxConfidence {
		return fmt.Errorf("signalgen.default_confidence must be between 0 and %d", models.MaxConfidence)
	}

	// Validate Calibration config
	if c.Calibration.Floor < 0 || c.Calibration.Ceiling > models.MaxConfidence || c.Calibration.Floor > c.Calibration.Ceiling {
		return fmt.Errorf("calibration.floor and calibration.ceiling must satisfy 0 <= floor <= ceiling <= %d", models.MaxConfidence)
	}

	// Validate Resolver config
	if c.Resolver.ResolveDelay < 0 {
		return fmt.Errorf("resolver.resolve_delay must not be negative")
	}
	if c.Resolver.ExpireAfter < 0 {
		return fmt.Errorf("resolver.expire_after must not be negative")
	}

	// Validate Relay config
	if c.Relay.Addr == "" {
		return fmt.Errorf("relay.addr is required")
	}
	if c.Relay.MaxPerAgent < 1 {
		return fmt.Errorf("relay.max_per_agent must be at least 1")
	}
	if c.Relay.QueueSize < 1 {
		return fmt.Errorf("relay.queue_size must be at least 1")
	}
	if c.Relay.PublishDelay < 0 {
		return fmt.Errorf("relay.publish_delay must not be negative")
	}

	// Validate Schedule config
	for name, spec := range map[string]string{"schedule.analyst": c.Schedule.Analyst, "schedule.resolver": c.Schedule.Resolver} {
		if spec == "" {
			continue
		}
		if _, err := cronParser.Parse(spec); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	if c.Telegram.ExplorerURL != "" && strings.Count(c.Telegram.ExplorerURL, "%s") != 1 {
		return fmt.Errorf("telegram.explorer_url must contain exactly one %%s for the signal address")
	}

	// Validate Storage config
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.MaxRuns < 1 {
		return fmt.Errorf("storage.max_runs must be at least 1")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// ProgramID returns the parsed program id. Call after Validate.
func (c *Config) ProgramID() models.Pubkey {
	id, _ := models.ParsePubkey(c.Ledger.ProgramID)
	return id
}
