package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the application's configuration model.
// It captures the account identity, credentials, reply templates, and the
// storage/server/refresh knobs.
type Config struct {
	Account     AccountConfig     `yaml:"account"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Replies     RepliesConfig     `yaml:"replies"`
	Storage     StorageConfig     `yaml:"storage"`
	Server      ServerConfig      `yaml:"server"`
	Refresh     RefreshConfig     `yaml:"refresh"`
}

type AccountConfig struct {
	// Instagram professional account id; inbound echoes of our own sends
	// carry this as the sender.
	ID       string `yaml:"id"`
	Username string `yaml:"username"`
}

type CredentialsConfig struct {
	// Webhook verification token. If empty, read from env IG_VERIFY_TOKEN
	VerifyToken string `yaml:"verifyToken"`
	// Telegram reporting credentials. If empty, read TELEGRAM_BOT_TOKEN
	// and TELEGRAM_CHAT_ID; leaving both unset disables reporting.
	TelegramBotToken string `yaml:"telegramBotToken"`
	TelegramChatID   string `yaml:"telegramChatId"`
}

type RepliesConfig struct {
	// Templates for media senders
	FirstTimeMessage     string `yaml:"firstTimeMessage"`
	ReturningUserMessage string `yaml:"returningUserMessage"`
	// Plain-text acknowledgment
	AckEnabled    bool   `yaml:"ackEnabled"`
	AckMessage    string `yaml:"ackMessage"`
	AckWindowDays int    `yaml:"ackWindowDays"`
	// Inbound texts containing any of these are ignored entirely
	ExcludedSentences []string `yaml:"excludedSentences"`
}

type StorageConfig struct {
	DBPath string `yaml:"dbPath"`
}

type ServerConfig struct {
	ListenAddr  string `yaml:"listenAddr"`
	MetricsAddr string `yaml:"metricsAddr"`
	// Log webhook payloads without acting on them
	LogOnly bool `yaml:"logOnly"`
}

type RefreshConfig struct {
	// Scheduler tick interval in hours
	IntervalHours int `yaml:"intervalHours"`
}

// Templates returns every outbound template we may send automatically.
// The echo classifier treats an exact match as an automatic message.
func (r RepliesConfig) Templates() []string {
	out := []string{}
	for _, t := range []string{r.FirstTimeMessage, r.ReturningUserMessage, r.AckMessage} {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Account: AccountConfig{},
		Replies: RepliesConfig{
			FirstTimeMessage:     "Thanks for sharing! Use Share → our app on the post to import it; sending it here by DM does not import it.",
			ReturningUserMessage: "Reminder: use Share → our app on the post itself to import it. Thanks!",
			AckEnabled:           false,
			AckMessage:           "Got it, thanks! A human will take a look soon.",
			AckWindowDays:        7,
		},
		Storage: StorageConfig{DBPath: "./igreply.db"},
		Server:  ServerConfig{ListenAddr: ":3000", MetricsAddr: ""},
		Refresh: RefreshConfig{IntervalHours: 24},
	}
}

// ResolveEnv fills in config fields from environment variables if not set.
// A local .env file is honored first, matching how the service is deployed.
func (c *Config) ResolveEnv() {
	_ = godotenv.Load()
	if c.Account.ID == "" {
		c.Account.ID = os.Getenv("IG_ACCOUNT_ID")
	}
	if c.Account.Username == "" {
		c.Account.Username = os.Getenv("IG_USERNAME")
	}
	if c.Credentials.VerifyToken == "" {
		c.Credentials.VerifyToken = os.Getenv("IG_VERIFY_TOKEN")
	}
	if c.Credentials.TelegramBotToken == "" {
		c.Credentials.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
	if c.Credentials.TelegramChatID == "" {
		c.Credentials.TelegramChatID = os.Getenv("TELEGRAM_CHAT_ID")
	}
	if v := os.Getenv("LOG_ONLY_WEBHOOKS"); v == "1" || v == "true" {
		c.Server.LogOnly = true
	}
	if c.Server.MetricsAddr == "" {
		c.Server.MetricsAddr = os.Getenv("METRICS_ADDR")
	}
	if c.Refresh.IntervalHours <= 0 {
		if n, err := strconv.Atoi(os.Getenv("REFRESH_INTERVAL_HOURS")); err == nil && n > 0 {
			c.Refresh.IntervalHours = n
		} else {
			c.Refresh.IntervalHours = 24
		}
	}
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.ResolveEnv()
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
