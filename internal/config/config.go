package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"agent-widget/internal/proxy"
	"agent-widget/internal/session"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	DefaultGlamourStyle    = "dark"
	DefaultWebhookEndpoint = "/n8n-proxy/webhook/sdr_agent_planejados"
	DefaultProxyListen     = "127.0.0.1:5173"
	DefaultLogLevel        = "info"
)

type AppConfig struct {
	WebhookURL   string        `yaml:"webhook_url"`
	PublicHost   string        `yaml:"public_host"`
	ProxyPrefix  string        `yaml:"proxy_prefix"`
	ProxyBase    string        `yaml:"proxy_base"`
	ProxyListen  string        `yaml:"proxy_listen"`
	Greeting     string        `yaml:"greeting"`
	TypingDelay  time.Duration `yaml:"typing_delay"`
	ExportDir    string        `yaml:"export_dir"`
	JournalPath  string        `yaml:"journal"`
	LogFile      string        `yaml:"log_file"`
	LogLevel     string        `yaml:"log_level"`
	GlamourStyle string        `yaml:"glamour_style"`
}

func Defaults() (AppConfig, error) {
	logFile, err := defaultDataPath("widget.log")
	if err != nil {
		return AppConfig{}, err
	}
	return AppConfig{
		WebhookURL:   DefaultWebhookEndpoint,
		PublicHost:   proxy.DefaultPublicHost,
		ProxyPrefix:  proxy.DefaultPrefix,
		ProxyListen:  DefaultProxyListen,
		Greeting:     session.DefaultGreeting,
		TypingDelay:  session.DefaultTypingDelay,
		ExportDir:    "exports",
		LogFile:      logFile,
		LogLevel:     DefaultLogLevel,
		GlamourStyle: DefaultGlamourStyle,
	}, nil
}

// LoadFile overlays the YAML file at path onto cfg. Keys missing from the file
// keep their current values.
func LoadFile(cfg *AppConfig, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment overrides. WEBHOOK_URL wins over
// VITE_WEBHOOK_URL.
func ApplyEnv(cfg *AppConfig, getenv func(string) string) {
	if v := DetectWebhookURL("", getenv); v != "" {
		cfg.WebhookURL = v
	}
	if v := strings.TrimSpace(getenv("AGENT_WIDGET_PROXY_BASE")); v != "" {
		cfg.ProxyBase = v
	}
	if v := strings.TrimSpace(getenv("AGENT_WIDGET_JOURNAL")); v != "" {
		cfg.JournalPath = v
	}
	if v := strings.TrimSpace(getenv("AGENT_WIDGET_LOG_FILE")); v != "" {
		cfg.LogFile = v
	}
}

// DetectWebhookURL returns the explicit endpoint, else the first environment
// override that is set. It returns "" when neither is present.
func DetectWebhookURL(explicit string, getenv func(string) string) string {
	if v := strings.TrimSpace(explicit); v != "" {
		return v
	}
	for _, key := range []string{"WEBHOOK_URL", "VITE_WEBHOOK_URL"} {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

// Loader binds the configuration flags to a flag set and resolves the
// layered configuration once the flags are parsed.
type Loader struct {
	flags      *pflag.FlagSet
	configPath string
	values     AppConfig
	getenv     func(string) string
	dotenv     func() error
}

func NewLoader(flags *pflag.FlagSet) (*Loader, error) {
	def, err := Defaults()
	if err != nil {
		return nil, err
	}
	l := &Loader{
		flags:  flags,
		values: def,
		getenv: os.Getenv,
		dotenv: func() error { return godotenv.Load() },
	}

	flags.StringVar(&l.configPath, "config", "", "path to YAML config file")
	flags.StringVar(&l.values.WebhookURL, "webhook-url", def.WebhookURL, "initial webhook endpoint")
	flags.StringVar(&l.values.PublicHost, "public-host", def.PublicHost, "public agent host that resume URLs are rewritten from")
	flags.StringVar(&l.values.ProxyPrefix, "proxy-prefix", def.ProxyPrefix, "local path prefix that stands in for the public host")
	flags.StringVar(&l.values.ProxyBase, "proxy-base", "", "base URL that proxy-relative endpoints are resolved against")
	flags.StringVar(&l.values.ProxyListen, "listen", def.ProxyListen, "proxy listen address")
	flags.StringVar(&l.values.Greeting, "greeting", def.Greeting, "agent greeting shown at the start of a conversation")
	flags.DurationVar(&l.values.TypingDelay, "typing-delay", def.TypingDelay, "delay before an agent reply is shown")
	flags.StringVar(&l.values.ExportDir, "export-dir", def.ExportDir, "transcript export directory")
	flags.StringVar(&l.values.JournalPath, "journal", "", "path to SQLite exchange journal (disabled when empty)")
	flags.StringVar(&l.values.LogFile, "log-file", def.LogFile, "log file used by the terminal widget")
	flags.StringVar(&l.values.LogLevel, "log-level", def.LogLevel, "log level (debug, info, warn, error)")
	flags.StringVar(&l.values.GlamourStyle, "glamour-style", def.GlamourStyle, "glamour style for agent messages")
	return l, nil
}

// Load resolves defaults, then the YAML file, then .env and the process
// environment, then any flag set explicitly on the command line.
func (l *Loader) Load() (AppConfig, error) {
	cfg, err := Defaults()
	if err != nil {
		return cfg, err
	}
	if err := LoadFile(&cfg, l.configPath); err != nil {
		return cfg, err
	}

	if err := l.dotenv(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	ApplyEnv(&cfg, l.getenv)

	// Persistent flags parsed by a subcommand are only marked Changed on the
	// shared flag, so walk all of them.
	l.flags.VisitAll(func(f *pflag.Flag) {
		if !f.Changed {
			return
		}
		switch f.Name {
		case "webhook-url":
			cfg.WebhookURL = l.values.WebhookURL
		case "public-host":
			cfg.PublicHost = l.values.PublicHost
		case "proxy-prefix":
			cfg.ProxyPrefix = l.values.ProxyPrefix
		case "proxy-base":
			cfg.ProxyBase = l.values.ProxyBase
		case "listen":
			cfg.ProxyListen = l.values.ProxyListen
		case "greeting":
			cfg.Greeting = l.values.Greeting
		case "typing-delay":
			cfg.TypingDelay = l.values.TypingDelay
		case "export-dir":
			cfg.ExportDir = l.values.ExportDir
		case "journal":
			cfg.JournalPath = l.values.JournalPath
		case "log-file":
			cfg.LogFile = l.values.LogFile
		case "log-level":
			cfg.LogLevel = l.values.LogLevel
		case "glamour-style":
			cfg.GlamourStyle = l.values.GlamourStyle
		}
	})

	return cfg, cfg.Validate()
}

func (c AppConfig) Validate() error {
	if strings.TrimSpace(c.WebhookURL) == "" {
		return errors.New("webhook url is empty")
	}
	if c.TypingDelay < 0 {
		return fmt.Errorf("typing delay must not be negative: %s", c.TypingDelay)
	}
	return nil
}

// Rewriter builds the resume URL rewriter for this configuration.
func (c AppConfig) Rewriter() proxy.Rewriter {
	return proxy.NewRewriter(c.PublicHost, c.ProxyPrefix, c.ProxyBase)
}

func defaultDataPath(name string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "agent-widget", name), nil
}
