package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all boot-time configuration for the application. Runtime
// behaviour (filters, reply template, poll interval) lives in the settings
// row managed by Manager.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	IMAP     IMAPConfig     `mapstructure:"imap"`
	Delivery DeliveryConfig `mapstructure:"delivery"`
	Defaults DefaultsConfig `mapstructure:"defaults"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// IMAPConfig holds mailbox transport configuration
type IMAPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Folder   string `mapstructure:"folder"`
}

// DeliveryConfig selects and configures the mail-send transport.
type DeliveryConfig struct {
	Transport string      `mapstructure:"transport"` // "smtp" or "gmail"
	From      string      `mapstructure:"from"`
	SMTP      SMTPConfig  `mapstructure:"smtp"`
	Gmail     GmailConfig `mapstructure:"gmail"`
}

// SMTPConfig holds SMTP transport configuration
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	UseTLS   bool   `mapstructure:"use_tls"`
}

// GmailConfig holds Gmail API transport configuration
type GmailConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
	UserEmail    string `mapstructure:"user_email"`
}

// DefaultsConfig seeds the settings row on first boot.
type DefaultsConfig struct {
	KeywordsEnabled      bool     `mapstructure:"keywords_enabled"`
	Keywords             []string `mapstructure:"keywords"`
	ExcludedDomains      []string `mapstructure:"excluded_domains"`
	ManualConfirmation   bool     `mapstructure:"manual_confirmation"`
	ReplyTemplate        string   `mapstructure:"reply_template"`
	CheckIntervalSeconds int      `mapstructure:"check_interval_seconds"`
}

// LoadConfig loads configuration from environment variables and config file
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	bindEnvVars()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)

	viper.SetDefault("imap.port", 993)
	viper.SetDefault("imap.folder", "INBOX")

	viper.SetDefault("delivery.transport", "smtp")
	viper.SetDefault("delivery.smtp.port", 587)
	viper.SetDefault("delivery.smtp.use_tls", false)

	viper.SetDefault("defaults.keywords_enabled", false)
	viper.SetDefault("defaults.manual_confirmation", true)
	viper.SetDefault("defaults.check_interval_seconds", 10)
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars() {
	// Server
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	// Database
	viper.BindEnv("database.host", "DB_HOST")
	viper.BindEnv("database.port", "DB_PORT")
	viper.BindEnv("database.user", "DB_USER")
	viper.BindEnv("database.password", "DB_PASSWORD")
	viper.BindEnv("database.dbname", "DB_NAME")

	// Mailbox
	viper.BindEnv("imap.host", "IMAP_HOST")
	viper.BindEnv("imap.port", "IMAP_PORT")
	viper.BindEnv("imap.username", "IMAP_USERNAME")
	viper.BindEnv("imap.password", "IMAP_PASSWORD")
	viper.BindEnv("imap.folder", "IMAP_FOLDER")

	// Delivery
	viper.BindEnv("delivery.transport", "DELIVERY_TRANSPORT")
	viper.BindEnv("delivery.from", "DELIVERY_FROM")
	viper.BindEnv("delivery.smtp.host", "SMTP_HOST")
	viper.BindEnv("delivery.smtp.port", "SMTP_PORT")
	viper.BindEnv("delivery.smtp.username", "SMTP_USERNAME")
	viper.BindEnv("delivery.smtp.password", "SMTP_PASSWORD")
	viper.BindEnv("delivery.smtp.use_tls", "SMTP_USE_TLS")
	viper.BindEnv("delivery.gmail.client_id", "GMAIL_CLIENT_ID")
	viper.BindEnv("delivery.gmail.client_secret", "GMAIL_CLIENT_SECRET")
	viper.BindEnv("delivery.gmail.refresh_token", "GMAIL_REFRESH_TOKEN")
	viper.BindEnv("delivery.gmail.user_email", "GMAIL_USER_EMAIL")
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
		return fmt.Errorf("database host, user, and dbname are required")
	}

	if c.IMAP.Host == "" || c.IMAP.Username == "" || c.IMAP.Password == "" {
		return fmt.Errorf("IMAP host and credentials are required")
	}

	if c.Delivery.From == "" {
		return fmt.Errorf("delivery from address is required")
	}

	switch c.Delivery.Transport {
	case "smtp":
		if c.Delivery.SMTP.Host == "" {
			return fmt.Errorf("SMTP host is required when using SMTP delivery")
		}
	case "gmail":
		g := c.Delivery.Gmail
		if g.ClientID == "" || g.ClientSecret == "" || g.RefreshToken == "" || g.UserEmail == "" {
			return fmt.Errorf("Gmail OAuth2 credentials are required when using Gmail delivery")
		}
	default:
		return fmt.Errorf("unknown delivery transport %q", c.Delivery.Transport)
	}

	if c.Defaults.CheckIntervalSeconds <= 0 {
		return fmt.Errorf("default check interval must be greater than 0")
	}

	return nil
}
