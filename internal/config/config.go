package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"mediasniff/internal/catalog"
	"mediasniff/internal/notify"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "MEDIASNIFF_"

const (
	DefaultListen           = "127.0.0.1:8765"
	DefaultDevToolsURL      = "http://127.0.0.1:9222"
	DefaultHistoryRetention = 30 * 24 * time.Hour
	DefaultRateLimit        = 120
)

// Config 守护进程配置
type Config struct {
	Listen           string        `yaml:"listen"`
	DevToolsURL      string        `yaml:"devtoolsUrl"`
	DBPath           string        `yaml:"dbPath"`
	DownloadDir      string        `yaml:"downloadDir"`
	LogLevel         string        `yaml:"logLevel"`
	Retention        time.Duration `yaml:"retention"`
	SweepInterval    time.Duration `yaml:"sweepInterval"`
	HistoryRetention time.Duration `yaml:"historyRetention"`
	FallbackOrigins  []string      `yaml:"fallbackOrigins"`
	AllowedOrigins   []string      `yaml:"allowedOrigins"` // WebSocket Origin 白名单，空表示仅同源
	RateLimit        int           `yaml:"rateLimit"`      // /api/message 每分钟请求上限，0 表示不限
	Launch           Launch        `yaml:"launch"`
}

// Launch 可选的浏览器启动配置
type Launch struct {
	Enabled     bool     `yaml:"enabled"`
	ExecPath    string   `yaml:"execPath"`
	UserDataDir string   `yaml:"userDataDir"`
	Port        int      `yaml:"port"`
	Headless    bool     `yaml:"headless"`
	Args        []string `yaml:"args"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Listen:           DefaultListen,
		DevToolsURL:      DefaultDevToolsURL,
		DownloadDir:      defaultDownloadDir(),
		LogLevel:         "info",
		Retention:        catalog.DefaultRetention,
		SweepInterval:    catalog.DefaultSweepInterval,
		HistoryRetention: DefaultHistoryRetention,
		FallbackOrigins:  append([]string(nil), notify.DefaultFallbackOrigins...),
		RateLimit:        DefaultRateLimit,
	}
}

// Load 依次应用默认值、YAML 文件与环境变量，最后校验
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(cfg)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = d
		return nil
	}

	str("LISTEN", &c.Listen)
	str("DEVTOOLS_URL", &c.DevToolsURL)
	str("DB_PATH", &c.DBPath)
	str("DOWNLOAD_DIR", &c.DownloadDir)
	str("LOG_LEVEL", &c.LogLevel)
	if err := dur("RETENTION", &c.Retention); err != nil {
		return err
	}
	if err := dur("SWEEP_INTERVAL", &c.SweepInterval); err != nil {
		return err
	}
	if err := dur("HISTORY_RETENTION", &c.HistoryRetention); err != nil {
		return err
	}
	if v, ok := lookup(EnvPrefix + "FALLBACK_ORIGINS"); ok {
		c.FallbackOrigins = splitList(v)
	}
	if v, ok := lookup(EnvPrefix + "ALLOWED_ORIGINS"); ok {
		c.AllowedOrigins = splitList(v)
	}
	if v, ok := lookup(EnvPrefix + "RATE_LIMIT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sRATE_LIMIT: %w", EnvPrefix, err)
		}
		c.RateLimit = n
	}
	return nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Listen) == "" {
		errs = append(errs, errors.New("listen address is empty"))
	}
	if u, err := url.Parse(c.DevToolsURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("devtools url %q must be an http(s) url", c.DevToolsURL))
	}
	if c.Retention <= 0 {
		errs = append(errs, errors.New("retention must be positive"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("sweep interval must be positive"))
	}
	if c.HistoryRetention < 0 {
		errs = append(errs, errors.New("history retention must not be negative"))
	}
	if c.RateLimit < 0 {
		errs = append(errs, errors.New("rate limit must not be negative"))
	}
	if c.LogLevel != "" {
		if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
			errs = append(errs, fmt.Errorf("log level %q: %w", c.LogLevel, err))
		}
	}
	if c.Launch.Port < 0 || c.Launch.Port > 65535 {
		errs = append(errs, fmt.Errorf("launch port %d out of range", c.Launch.Port))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func defaultDownloadDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "mediasniff-downloads")
	}
	return filepath.Join(home, "Downloads")
}
