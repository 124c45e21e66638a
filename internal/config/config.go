package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrMissingCredentials is returned when a required secret is not configured
var ErrMissingCredentials = errors.New("missing credentials")

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	LinkedIn  LinkedInConfig  `mapstructure:"linkedin"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Scraper   ScraperConfig   `mapstructure:"scraper"`
	Topics    TopicsConfig    `mapstructure:"topics"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Server    ServerConfig    `mapstructure:"server"`
	Slack     SlackConfig     `mapstructure:"slack"`
	Email     EmailConfig     `mapstructure:"email"`
	HashNode  HashNodeConfig  `mapstructure:"hashnode"`
	Research  ResearchConfig  `mapstructure:"research"`
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	Output    OutputConfig    `mapstructure:"output"`
	Profile   ProfileConfig   `mapstructure:"profile"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LinkedInConfig holds LinkedIn login and API settings
type LinkedInConfig struct {
	// Browser login for feed scraping
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`

	// API access for sharing posts
	ClientID       string   `mapstructure:"client_id"`
	ClientSecret   string   `mapstructure:"client_secret"`
	RedirectURI    string   `mapstructure:"redirect_uri"`
	Scopes         []string `mapstructure:"scopes"`
	AccessToken    string   `mapstructure:"access_token"`
	RefreshToken   string   `mapstructure:"refresh_token"`
	TokenExpiresAt string   `mapstructure:"token_expires_at"`
	PersonID       string   `mapstructure:"person_id"`
	APIBaseURL     string   `mapstructure:"api_base_url"`
	Visibility     string   `mapstructure:"visibility"` // connections or public
	MaxRetries     int      `mapstructure:"max_retries"`
	RetryBaseDelay string   `mapstructure:"retry_base_delay"`
}

// AnthropicConfig holds Claude API settings
type AnthropicConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// ScraperConfig holds feed scraping settings
type ScraperConfig struct {
	FeedURL         string `mapstructure:"feed_url"`
	LoginURL        string `mapstructure:"login_url"`
	MaxPosts        int    `mapstructure:"max_posts"`
	ScrollPause     string `mapstructure:"scroll_pause"`
	Timeout         string `mapstructure:"timeout"`
	MaxScrolls      int    `mapstructure:"max_scrolls"`
	StagnationLimit int    `mapstructure:"stagnation_limit"`
	MaxRetries      int    `mapstructure:"max_retries"`
	Headless        bool   `mapstructure:"headless"`
	ChromePath      string `mapstructure:"chrome_path"`
	ScrollIntoView  bool   `mapstructure:"scroll_into_view"`
}

// TopicsConfig holds relevance topic settings
type TopicsConfig struct {
	Defaults []string `mapstructure:"defaults"`
}

// SchedulerConfig holds workflow scheduler settings
type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Cron     string `mapstructure:"cron"`
	Timezone string `mapstructure:"timezone"`
	Cooldown string `mapstructure:"cooldown"`
}

// ServerConfig holds inbound HTTP settings
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	APIKey       string `mapstructure:"api_key"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// SlackConfig holds Slack integration settings
type SlackConfig struct {
	WebhookURL    string `mapstructure:"webhook_url"`
	BotToken      string `mapstructure:"bot_token"`
	SigningSecret string `mapstructure:"signing_secret"`
	ReplayWindow  string `mapstructure:"replay_window"`
}

// EmailConfig holds SMTP notification settings
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	To       string `mapstructure:"to"`
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
}

// HashNodeConfig holds blog publishing settings
type HashNodeConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	APIKey        string `mapstructure:"api_key"`
	PublicationID string `mapstructure:"publication_id"`
	Endpoint      string `mapstructure:"endpoint"`
	MinWords      int    `mapstructure:"min_words"`
	MaxWords      int    `mapstructure:"max_words"`
}

// ResearchConfig holds RSS reference feeds used as generation context
type ResearchConfig struct {
	Enabled       bool      `mapstructure:"enabled"`
	Feeds         []RSSFeed `mapstructure:"feeds"`
	MaxReferences int       `mapstructure:"max_references"`
	MaxAge        string    `mapstructure:"max_age"`
}

// RSSFeed represents a single RSS feed
type RSSFeed struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

// TrackerConfig holds Google Sheets export settings
type TrackerConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	SpreadsheetID      string `mapstructure:"spreadsheet_id"`
	SheetName          string `mapstructure:"sheet_name"`
	CredentialsFile    string `mapstructure:"credentials_file"`
	ServiceAccountJSON string `mapstructure:"service_account_json"`
}

// OutputConfig holds scrape output file settings
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// ProfileConfig points at the agent profile file
type ProfileConfig struct {
	Path string `mapstructure:"path"`
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	LinkedInRequestsPerDay     int `mapstructure:"linkedin_requests_per_day"`
	AnthropicRequestsPerMinute int `mapstructure:"anthropic_requests_per_minute"`
	HashNodeRequestsPerHour    int `mapstructure:"hashnode_requests_per_hour"`
	SlackRequestsPerMinute     int `mapstructure:"slack_requests_per_minute"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
	Output string `mapstructure:"output"` // stdout or file path
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Load .env file if present (ignore errors if not found)
	_ = godotenv.Load()
	_ = godotenv.Load(".env.local")

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")

		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".linkedin-pipeline"))
		}
	}

	v.SetEnvPrefix("PIPELINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Secrets keep the plain names the deployment already exports
	v.BindEnv("linkedin.email", "PIPELINE_LINKEDIN_EMAIL", "LINKEDIN_EMAIL")
	v.BindEnv("linkedin.password", "PIPELINE_LINKEDIN_PASSWORD", "LINKEDIN_PASSWORD")
	v.BindEnv("linkedin.access_token", "PIPELINE_LINKEDIN_ACCESS_TOKEN", "LINKEDIN_ACCESS_TOKEN")
	v.BindEnv("linkedin.person_id", "PIPELINE_LINKEDIN_PERSON_ID", "LINKEDIN_PERSON_ID")
	v.BindEnv("linkedin.client_id", "PIPELINE_LINKEDIN_CLIENT_ID")
	v.BindEnv("linkedin.client_secret", "PIPELINE_LINKEDIN_CLIENT_SECRET")
	v.BindEnv("anthropic.api_key", "PIPELINE_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	v.BindEnv("slack.webhook_url", "PIPELINE_SLACK_WEBHOOK_URL", "SLACK_WEBHOOK_URL")
	v.BindEnv("slack.bot_token", "PIPELINE_SLACK_BOT_TOKEN", "SLACK_BOT_TOKEN")
	v.BindEnv("slack.signing_secret", "PIPELINE_SLACK_SIGNING_SECRET", "SLACK_SIGNING_SECRET")
	v.BindEnv("email.address", "PIPELINE_EMAIL_ADDRESS", "EMAIL_ADDRESS")
	v.BindEnv("email.password", "PIPELINE_EMAIL_PASSWORD", "EMAIL_PASSWORD")
	v.BindEnv("email.to", "PIPELINE_EMAIL_TO", "EMAIL_TO_ADDRESS")
	v.BindEnv("email.smtp_host", "PIPELINE_EMAIL_SMTP_HOST", "SMTP_SERVER")
	v.BindEnv("email.smtp_port", "PIPELINE_EMAIL_SMTP_PORT", "SMTP_PORT")
	v.BindEnv("hashnode.api_key", "PIPELINE_HASHNODE_API_KEY", "HASHNODE_API_KEY")
	v.BindEnv("hashnode.publication_id", "PIPELINE_HASHNODE_PUBLICATION_ID", "HASHNODE_PUBLICATION_ID")
	v.BindEnv("server.api_key", "PIPELINE_SERVER_API_KEY", "API_KEY")
	v.BindEnv("server.port", "PIPELINE_SERVER_PORT", "PORT")
	v.BindEnv("tracker.service_account_json", "PIPELINE_TRACKER_SERVICE_ACCOUNT_JSON")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// DefaultTopics is the relevance keyword list used when none is configured
var DefaultTopics = []string{
	"llm", "genai", "rag", "agent", "openai", "anthropic", "llama",
	"gpt", "claude", "gemini", "vector db", "embedding", "semantic search",
	"autogpt", "babyagi", "mlops", "ai safety", "ai ethics", "machine learning",
	"deep learning", "neural network", "artificial intelligence", "transformer",
	"large language model", "foundation model", "fine-tuning", "prompt engineering",
	"hugging face", "stable diffusion", "dall-e", "midjourney", "langchain",
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.dsn", "./data/pipeline.db")

	v.SetDefault("linkedin.redirect_uri", "http://localhost:8080/callback")
	v.SetDefault("linkedin.scopes", []string{"w_member_social", "openid", "profile"})
	v.SetDefault("linkedin.api_base_url", "https://api.linkedin.com")
	v.SetDefault("linkedin.visibility", "connections")
	v.SetDefault("linkedin.max_retries", 3)
	v.SetDefault("linkedin.retry_base_delay", "1s")

	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.temperature", 0.7)

	v.SetDefault("scraper.feed_url", "https://www.linkedin.com/feed/")
	v.SetDefault("scraper.login_url", "https://www.linkedin.com/login")
	v.SetDefault("scraper.max_posts", 10)
	v.SetDefault("scraper.scroll_pause", "2s")
	v.SetDefault("scraper.timeout", "120s")
	v.SetDefault("scraper.max_scrolls", 50)
	v.SetDefault("scraper.stagnation_limit", 3)
	v.SetDefault("scraper.max_retries", 3)
	v.SetDefault("scraper.headless", true)
	v.SetDefault("scraper.scroll_into_view", true)

	v.SetDefault("topics.defaults", DefaultTopics)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.cron", "0 8 * * *") // 8am daily
	v.SetDefault("scheduler.timezone", "Europe/Paris")
	v.SetDefault("scheduler.cooldown", "0s")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.read_timeout", "300s")
	v.SetDefault("server.write_timeout", "300s")

	v.SetDefault("slack.replay_window", "300s")

	v.SetDefault("email.enabled", false)
	v.SetDefault("email.smtp_host", "smtp.gmail.com")
	v.SetDefault("email.smtp_port", 587)

	v.SetDefault("hashnode.enabled", false)
	v.SetDefault("hashnode.endpoint", "https://gql.hashnode.com")
	v.SetDefault("hashnode.min_words", 800)
	v.SetDefault("hashnode.max_words", 1500)

	v.SetDefault("research.enabled", false)
	v.SetDefault("research.max_references", 5)
	v.SetDefault("research.max_age", "168h")

	v.SetDefault("tracker.enabled", false)
	v.SetDefault("tracker.sheet_name", "Drafts")

	v.SetDefault("output.dir", "./data/output")

	v.SetDefault("profile.path", "./configs/agents.yaml")

	v.SetDefault("rate_limit.linkedin_requests_per_day", 100)
	v.SetDefault("rate_limit.anthropic_requests_per_minute", 10)
	v.SetDefault("rate_limit.hashnode_requests_per_hour", 30)
	v.SetDefault("rate_limit.slack_requests_per_minute", 60)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stdout")
}

// ValidateScraper checks the settings needed to log into the feed
func (c *Config) ValidateScraper() error {
	if c.LinkedIn.Email == "" || c.LinkedIn.Password == "" {
		return fmt.Errorf("linkedin.email and linkedin.password are required: %w", ErrMissingCredentials)
	}
	return nil
}

// ValidateGeneration checks the settings needed for LLM calls
func (c *Config) ValidateGeneration() error {
	if c.Anthropic.APIKey == "" {
		return fmt.Errorf("anthropic.api_key is required: %w", ErrMissingCredentials)
	}
	return nil
}

// ValidateServer checks the settings needed to accept callbacks
func (c *Config) ValidateServer() error {
	if c.Slack.SigningSecret == "" {
		return fmt.Errorf("slack.signing_secret is required: %w", ErrMissingCredentials)
	}
	if c.Server.APIKey == "" {
		return fmt.Errorf("server.api_key is required: %w", ErrMissingCredentials)
	}
	return nil
}

// Duration parses a duration setting, returning fallback for empty or invalid values
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
