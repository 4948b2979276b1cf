// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MailboxConfig holds the inbound IMAP settings.
type MailboxConfig struct {
	Host     string
	Port     int
	TLS      bool
	User     string
	Password string
	Folder   string

	// OAuth2 client-credentials; when TokenURL is set the mailbox
	// authenticates with OAUTHBEARER instead of LOGIN.
	OAuthTokenURL     string
	OAuthClientID     string
	OAuthClientSecret string
	OAuthScopes       []string

	DialTimeout  time.Duration
	PollSchedule string
}

// Enabled reports whether enough is configured to poll the mailbox.
func (m MailboxConfig) Enabled() bool {
	if m.Host == "" || m.User == "" {
		return false
	}
	return m.Password != "" || m.OAuthTokenURL != ""
}

// SMTPConfig holds the outbound reply transport settings.
type SMTPConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	From        string
	DialTimeout time.Duration
}

// OpenAIConfig holds the text-generation service settings.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Timeout   time.Duration
	MaxTokens int
}

// TelegramConfig holds the escalation channel settings.
type TelegramConfig struct {
	BotToken string
	ChatID   string
	APIURL   string
	Timeout  time.Duration
}

// Config holds all configuration for the support desk service.
type Config struct {
	DatabaseURL string

	// Redis
	RedisURL string
	DedupTTL time.Duration

	Mailbox  MailboxConfig
	SMTP     SMTPConfig
	OpenAI   OpenAIConfig
	Telegram TelegramConfig

	// Lifecycle
	Retention       time.Duration
	ReaperSchedule  string
	RequeueSchedule string
	RequeueMinAge   time.Duration

	StorageDir         string
	OCRLanguages       string
	Workers            int
	MaxAttachments     int
	MaxAttachmentBytes int64

	BlockedSenders  []string
	BlockedSubjects []string

	// Server
	Port     int
	LogLevel string
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	Mailbox struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		TLS      *bool  `yaml:"tls"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Folder   string `yaml:"folder"`
		OAuth    struct {
			TokenURL     string   `yaml:"token_url"`
			ClientID     string   `yaml:"client_id"`
			ClientSecret string   `yaml:"client_secret"`
			Scopes       []string `yaml:"scopes"`
		} `yaml:"oauth"`
		Schedule string `yaml:"schedule"`
	} `yaml:"mailbox"`
	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
	} `yaml:"smtp"`
	OpenAI struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"`
		Model   string `yaml:"model"`
	} `yaml:"openai"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Reaper struct {
		Schedule string `yaml:"schedule"`
	} `yaml:"reaper"`
	Requeue struct {
		Schedule string `yaml:"schedule"`
	} `yaml:"requeue"`
	OCR struct {
		Languages string `yaml:"languages"`
	} `yaml:"ocr"`
	Filter struct {
		BlockedSenders  []string `yaml:"blocked_senders"`
		BlockedSubjects []string `yaml:"blocked_subjects"`
	} `yaml:"filter"`
	StorageDir string `yaml:"storage_dir"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables. A missing config file is not an error: every
// setting has an environment fallback.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	var raw rawConfig
	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// env-only deployment
	case err != nil:
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	default:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	}

	imapPort := raw.Mailbox.Port
	if imapPort == 0 {
		imapPort = envOrDefaultInt("IMAP_PORT", 993)
	}
	imapTLS := envOrDefaultBool("IMAP_TLS", imapPort == 993)
	if raw.Mailbox.TLS != nil {
		imapTLS = *raw.Mailbox.TLS
	}
	smtpPort := raw.SMTP.Port
	if smtpPort == 0 {
		smtpPort = envOrDefaultInt("SMTP_PORT", 465)
	}

	scopes := raw.Mailbox.OAuth.Scopes
	if len(scopes) == 0 {
		scopes = splitList(os.Getenv("IMAP_OAUTH_SCOPES"))
	}

	cfg := &Config{
		DatabaseURL: firstNonEmpty(raw.Database.URL, envOrDefault("DATABASE_URL", "")),
		RedisURL:    firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		DedupTTL:    envOrDefaultDuration("DEDUP_TTL", 7*24*time.Hour),

		Mailbox: MailboxConfig{
			Host:              firstNonEmpty(raw.Mailbox.Host, os.Getenv("IMAP_HOST")),
			Port:              imapPort,
			TLS:               imapTLS,
			User:              firstNonEmpty(raw.Mailbox.User, os.Getenv("IMAP_USER")),
			Password:          firstNonEmpty(raw.Mailbox.Password, os.Getenv("IMAP_PASS")),
			Folder:            firstNonEmpty(raw.Mailbox.Folder, envOrDefault("IMAP_FOLDER", "INBOX")),
			OAuthTokenURL:     firstNonEmpty(raw.Mailbox.OAuth.TokenURL, os.Getenv("IMAP_OAUTH_TOKEN_URL")),
			OAuthClientID:     firstNonEmpty(raw.Mailbox.OAuth.ClientID, os.Getenv("IMAP_OAUTH_CLIENT_ID")),
			OAuthClientSecret: firstNonEmpty(raw.Mailbox.OAuth.ClientSecret, os.Getenv("IMAP_OAUTH_CLIENT_SECRET")),
			OAuthScopes:       scopes,
			DialTimeout:       envOrDefaultDuration("IMAP_TIMEOUT", 30*time.Second),
			PollSchedule:      firstNonEmpty(raw.Mailbox.Schedule, envOrDefault("IMAP_POLL_SCHEDULE", "@every 1m")),
		},

		SMTP: SMTPConfig{
			Host:        firstNonEmpty(raw.SMTP.Host, os.Getenv("SMTP_HOST")),
			Port:        smtpPort,
			User:        firstNonEmpty(raw.SMTP.User, os.Getenv("SMTP_USER")),
			Password:    firstNonEmpty(raw.SMTP.Password, os.Getenv("SMTP_PASS")),
			From:        firstNonEmpty(raw.SMTP.From, os.Getenv("SMTP_FROM"), raw.SMTP.User, os.Getenv("SMTP_USER")),
			DialTimeout: envOrDefaultDuration("SMTP_TIMEOUT", 30*time.Second),
		},

		OpenAI: OpenAIConfig{
			APIKey:    firstNonEmpty(raw.OpenAI.APIKey, os.Getenv("OPENAI_API_KEY")),
			BaseURL:   firstNonEmpty(raw.OpenAI.BaseURL, os.Getenv("OPENAI_BASE_URL")),
			Model:     firstNonEmpty(raw.OpenAI.Model, envOrDefault("OPENAI_MODEL", "gpt-4o-mini")),
			Timeout:   envOrDefaultDuration("OPENAI_TIMEOUT", 60*time.Second),
			MaxTokens: envOrDefaultInt("OPENAI_MAX_TOKENS", 1500),
		},

		Telegram: TelegramConfig{
			BotToken: firstNonEmpty(raw.Telegram.BotToken, os.Getenv("TELEGRAM_BOT_TOKEN")),
			ChatID:   firstNonEmpty(raw.Telegram.ChatID, os.Getenv("TELEGRAM_CHAT_ID")),
			APIURL:   envOrDefault("TELEGRAM_API_URL", "https://api.telegram.org"),
			Timeout:  envOrDefaultDuration("TELEGRAM_TIMEOUT", 10*time.Second),
		},

		Retention:      envOrDefaultDuration("CASE_RETENTION", 5*time.Minute),
		ReaperSchedule: firstNonEmpty(raw.Reaper.Schedule, envOrDefault("REAPER_SCHEDULE", "@every 1m")),

		RequeueSchedule: firstNonEmpty(raw.Requeue.Schedule, envOrDefault("REQUEUE_SCHEDULE", "@every 5m")),
		RequeueMinAge:   envOrDefaultDuration("REQUEUE_MIN_AGE", 5*time.Minute),

		StorageDir:         firstNonEmpty(raw.StorageDir, envOrDefault("STORAGE_DIR", "/app/data")),
		OCRLanguages:       firstNonEmpty(raw.OCR.Languages, envOrDefault("OCR_LANGUAGES", "rus+eng")),
		Workers:            envOrDefaultInt("CLASSIFY_WORKERS", 4),
		MaxAttachments:     envOrDefaultInt("MAX_ATTACHMENTS", 10),
		MaxAttachmentBytes: int64(envOrDefaultInt("MAX_ATTACHMENT_BYTES", 20<<20)),

		BlockedSenders:  append(append([]string{}, DefaultBlockedSenders...), raw.Filter.BlockedSenders...),
		BlockedSubjects: append(append([]string{}, DefaultBlockedSubjects...), raw.Filter.BlockedSubjects...),

		Port:     envOrDefaultInt("PORT", 8080),
		LogLevel: envOrDefault("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings the service cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("database url is required (DATABASE_URL or database.url)")
	}
	if c.Workers < 1 {
		return fmt.Errorf("CLASSIFY_WORKERS must be positive, got %d", c.Workers)
	}
	if c.Retention <= 0 {
		return fmt.Errorf("CASE_RETENTION must be positive, got %s", c.Retention)
	}
	return nil
}

// DefaultBlockedSenders are address fragments of automated senders.
var DefaultBlockedSenders = []string{
	"noreply@", "no-reply@", "mailer-daemon@", "postmaster@", "donotreply@",
	"notifications@", "alert@", "alerts@", "security@google", "accounts.google.com",
	"googlemail.com", "facebookmail.com", "twitter.com", "linkedin.com",
	"newsletter@", "marketing@", "promo@", "spam@", "bounce@", "daemon@",
}

// DefaultBlockedSubjects are phrases of system notifications.
var DefaultBlockedSubjects = []string{
	"security alert", "password reset", "verify your email", "confirm your email",
	"sign-in attempt", "suspicious activity", "unsubscribe", "newsletter",
	"подтверждение почты", "подтвердите email", "сброс пароля",
	"оповещение безопасности", "подозрительная активность",
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
