// Package config loads the service configuration.
//
// A config file is CUE (plain JSON is valid CUE) checked against the
// embedded schema; unknown keys are rejected. Values present in the file
// replace the defaults. Secrets are read from the environment, optionally
// seeded from a .env file.
package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/joho/godotenv"
)

//go:embed schema.cue
var schemaSource string

// Environment variables read by Load.
const (
	EnvTelegramToken = "GHOSTCHAT_TELEGRAM_TOKEN"
	EnvSMTPPassword  = "GHOSTCHAT_SMTP_PASSWORD"
	EnvRedisPassword = "GHOSTCHAT_REDIS_PASSWORD"
	EnvDatabase      = "GHOSTCHAT_DATABASE"
	EnvWebhookSecret = "GHOSTCHAT_WEBHOOK_SECRET"
)

// Duration is a time.Duration written as a Go duration string.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalJSON writes d as a duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON parses a duration string.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config is the full service configuration.
type Config struct {
	Database   string           `json:"database"`
	Telegram   TelegramConfig   `json:"telegram"`
	Matching   MatchingConfig   `json:"matching"`
	Membership MembershipConfig `json:"membership"`
	Notify     NotifyConfig     `json:"notify"`
	OTP        OTPConfig        `json:"otp"`
	SMTP       SMTPConfig       `json:"smtp"`
	HTTP       HTTPConfig       `json:"http"`
	Log        LogConfig        `json:"log"`
	Loop       LoopConfig       `json:"loop"`
}

type TelegramConfig struct {
	APIURL      string   `json:"api_url"`
	Token       string   `json:"token"`
	BotUsername string   `json:"bot_username"`
	PollTimeout Duration `json:"poll_timeout"`

	// Webhook receives updates on the admin listener instead of polling.
	// WebhookURL, when set, is registered with Telegram at startup.
	Webhook       bool   `json:"webhook"`
	WebhookURL    string `json:"webhook_url"`
	WebhookSecret string `json:"webhook_secret"`
}

type MatchingConfig struct {
	MinLobby int `json:"min_lobby"`
}

type MembershipConfig struct {
	VIPDays           int      `json:"vip_days"`
	ReferralThreshold int      `json:"referral_threshold"`
	SweepInterval     Duration `json:"sweep_interval"`
}

type NotifyConfig struct {
	Workers       int      `json:"workers"`
	QueueSize     int      `json:"queue_size"`
	SendTimeout   Duration `json:"send_timeout"`
	RatePerSecond float64  `json:"rate_per_second"`
	Burst         int      `json:"burst"`
}

type OTPConfig struct {
	TTL           Duration `json:"ttl"`
	Prefix        string   `json:"prefix"`
	RedisAddr     string   `json:"redis_addr"`
	RedisPassword string   `json:"redis_password"`
	RedisDB       int      `json:"redis_db"`
}

type SMTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from"`
}

// Enabled reports whether mail can be sent.
func (c SMTPConfig) Enabled() bool { return c.Host != "" }

type HTTPConfig struct {
	// Addr is the admin listener. Empty disables it.
	Addr string `json:"addr"`
}

type LogConfig struct {
	Level string `json:"level"`
	// Dir receives daily log files when set.
	Dir string `json:"dir"`
}

type LoopConfig struct {
	IdleDelay    Duration `json:"idle_delay"`
	ErrorBackoff Duration `json:"error_backoff"`
}

// Default returns the configuration used for keys a file leaves out.
func Default() Config {
	return Config{
		Database: "ghostchat.db",
		Telegram: TelegramConfig{
			BotUsername: "TextGhost_bot",
			PollTimeout: Duration(10 * time.Second),
		},
		Matching: MatchingConfig{MinLobby: 2},
		Membership: MembershipConfig{
			VIPDays:           30,
			ReferralThreshold: 5,
			SweepInterval:     Duration(time.Hour),
		},
		Notify: NotifyConfig{
			Workers:       4,
			QueueSize:     256,
			SendTimeout:   Duration(10 * time.Second),
			RatePerSecond: 25,
			Burst:         5,
		},
		OTP: OTPConfig{
			TTL:    Duration(10 * time.Minute),
			Prefix: "GC-",
		},
		SMTP: SMTPConfig{Port: 465},
		HTTP: HTTPConfig{Addr: ":8080"},
		Log:  LogConfig{Level: "info"},
		Loop: LoopConfig{
			IdleDelay:    Duration(time.Second),
			ErrorBackoff: Duration(5 * time.Second),
		},
	}
}

// Load reads path (may be empty for defaults only), then envFile (may be
// empty or missing), then applies environment overrides.
func Load(path, envFile string) (Config, error) {
	cfg := Default()
	if path != "" {
		src, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if cfg, err = Parse(path, src); err != nil {
			return Config{}, err
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

// Parse validates src against the schema and decodes it over Default.
// filename is used in error positions only.
func Parse(filename string, src []byte) (Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("config schema: %w", err)
	}

	file := ctx.CompileBytes(src, cue.Filename(filename))
	if err := file.Err(); err != nil {
		return Config{}, fmt.Errorf("parse %s: %s", filename, cueerrors.Details(err, nil))
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(file)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %s", filename, cueerrors.Details(err, nil))
	}

	raw, err := v.MarshalJSON()
	if err != nil {
		return Config{}, fmt.Errorf("export config: %w", err)
	}
	cfg := Default()
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvTelegramToken); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv(EnvSMTPPassword); v != "" {
		cfg.SMTP.Password = v
	}
	if v := os.Getenv(EnvRedisPassword); v != "" {
		cfg.OTP.RedisPassword = v
	}
	if v := os.Getenv(EnvDatabase); v != "" {
		cfg.Database = v
	}
	if v := os.Getenv(EnvWebhookSecret); v != "" {
		cfg.Telegram.WebhookSecret = v
	}
}

// Validate checks the settings needed to run the service.
func (c Config) Validate() error {
	var errs []error
	if c.Telegram.Token == "" {
		errs = append(errs, fmt.Errorf("telegram token missing: set telegram.token or %s", EnvTelegramToken))
	}
	if c.SMTP.Enabled() && c.SMTP.Username == "" {
		errs = append(errs, errors.New("smtp.username is required when smtp.host is set"))
	}
	if c.Telegram.Webhook && c.HTTP.Addr == "" {
		errs = append(errs, errors.New("telegram.webhook needs http.addr"))
	}
	if c.Membership.ReferralThreshold <= 0 {
		errs = append(errs, errors.New("membership.referral_threshold must be positive"))
	}
	return errors.Join(errs...)
}

// String renders the config as JSON with secrets masked.
func (c Config) String() string {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "***"
	}
	c.Telegram.Token = mask(c.Telegram.Token)
	c.Telegram.WebhookSecret = mask(c.Telegram.WebhookSecret)
	c.SMTP.Password = mask(c.SMTP.Password)
	c.OTP.RedisPassword = mask(c.OTP.RedisPassword)
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "config: " + strconv.Quote(err.Error())
	}
	return string(b)
}
