package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultGlamourStyle = "dark"
	DefaultEndpoint     = "http://127.0.0.1:8000/chat"
	DefaultUserID       = "11"
	DefaultTimeout      = 60 * time.Second
	DefaultTitle        = "Chatbot"
	DefaultSubtitle     = "Powered by Chronos Wealth Management"
	EnvPrefix           = "CHATWIDGET"
)

type AppConfig struct {
	Endpoint      string
	UserID        string
	Timeout       time.Duration
	ExportDir     string
	JournalPath   string
	LogFile       string
	LogLevel      string
	GlamourStyle  string
	VerboseErrors bool
	Title         string
	Subtitle      string
}

func RegisterFlags(fs *pflag.FlagSet, v *viper.Viper) {
	fs.String("endpoint", DefaultEndpoint, "conversation backend URL")
	fs.String("user-id", DefaultUserID, "user_id sent with every message")
	fs.Duration("timeout", DefaultTimeout, "backend call deadline (0 disables)")
	fs.String("export-dir", "", "override export output directory")
	fs.String("journal", "", "path to sqlite exchange journal (disabled when empty)")
	fs.String("log-file", "", "write logs to this file")
	fs.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	fs.String("style", DefaultGlamourStyle, "glamour style for rendered replies")
	fs.Bool("verbose-errors", false, "append the failure kind to backend error messages")
	fs.String("title", DefaultTitle, "panel heading")
	fs.String("subtitle", DefaultSubtitle, "panel subheading")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
	})
}

func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func ReadFile(v *viper.Viper, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

func Load(v *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		UserID:        strings.TrimSpace(v.GetString("user-id")),
		ExportDir:     strings.TrimSpace(v.GetString("export-dir")),
		LogFile:       strings.TrimSpace(v.GetString("log-file")),
		LogLevel:      strings.TrimSpace(v.GetString("log-level")),
		GlamourStyle:  strings.TrimSpace(v.GetString("style")),
		VerboseErrors: v.GetBool("verbose-errors"),
		Title:         strings.TrimSpace(v.GetString("title")),
		Subtitle:      strings.TrimSpace(v.GetString("subtitle")),
	}

	var err error
	cfg.Timeout, err = ParseTimeout(v.GetString("timeout"))
	if err != nil {
		return cfg, err
	}
	cfg.Endpoint, err = DetectEndpoint(v.GetString("endpoint"))
	if err != nil {
		return cfg, err
	}
	cfg.JournalPath, err = DetectJournalPath(v.GetString("journal"))
	if err != nil {
		return cfg, err
	}

	if cfg.UserID == "" {
		cfg.UserID = DefaultUserID
	}
	if cfg.GlamourStyle == "" {
		cfg.GlamourStyle = DefaultGlamourStyle
	}
	if cfg.Title == "" {
		cfg.Title = DefaultTitle
	}
	return cfg, nil
}

// ParseTimeout reads a Go duration ("45s", "1m30s"). A bare number is taken
// as seconds, matching how config files and env vars are usually written.
func ParseTimeout(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultTimeout, nil
	}
	var d time.Duration
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		d = time.Duration(secs * float64(time.Second))
	} else {
		d, err = time.ParseDuration(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid timeout %q: %w", raw, err)
		}
	}
	switch {
	case d < 0:
		return 0, fmt.Errorf("invalid timeout %s: must not be negative", d)
	case d > 0 && d < time.Millisecond:
		return 0, fmt.Errorf("invalid timeout %s: must be 0 or at least 1ms", d)
	}
	return d, nil
}

func DetectEndpoint(explicit string) (string, error) {
	raw := strings.TrimSpace(explicit)
	if raw == "" {
		raw = DefaultEndpoint
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid endpoint %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid endpoint %q: missing host", raw)
	}
	return u.String(), nil
}

// DetectJournalPath expands a leading ~ and creates the parent directory. An
// empty value keeps the journal disabled.
func DetectJournalPath(explicit string) (string, error) {
	path := strings.TrimSpace(explicit)
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create journal dir: %w", err)
	}
	return path, nil
}
