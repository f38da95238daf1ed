package config

import (
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"

	"github.com/selimozcann/seasec/internal/report"
)

// EnvPrefix is prepended to every environment override, e.g.
// SEASEC_CRAWL_MAX_PAGES.
const EnvPrefix = "SEASEC"

type Config struct {
	DataDir    string       `mapstructure:"data_dir"`
	ListenAddr string       `mapstructure:"listen_addr"`
	TargetSite string       `mapstructure:"target_site"`
	Log        LogConfig    `mapstructure:"log"`
	Crawl      CrawlConfig  `mapstructure:"crawl"`
	Model      ModelConfig  `mapstructure:"model"`
	Report     ReportConfig `mapstructure:"report"`
	Server     ServerConfig `mapstructure:"server"`
}

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type CrawlConfig struct {
	MaxPages    int           `mapstructure:"max_pages"`
	Concurrency int           `mapstructure:"concurrency"`
	RateLimit   float64       `mapstructure:"rate_limit"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Retries     int           `mapstructure:"retries"`
	UserAgent   string        `mapstructure:"user_agent"`
}

type ModelConfig struct {
	Trees      int   `mapstructure:"trees"`
	SampleSize int   `mapstructure:"sample_size"`
	Seed       int64 `mapstructure:"seed"`
}

type ReportConfig struct {
	Order     string   `mapstructure:"order"`
	Renderers []string `mapstructure:"renderers"`
	// PDFCommand, when set, replaces the built-in PDF layout with an external
	// HTML converter reading stdin and writing stdout, e.g. "wkhtmltopdf - -".
	PDFCommand string `mapstructure:"pdf_command"`
	KeepRuns   int    `mapstructure:"keep_runs"`
	Title      string `mapstructure:"title"`
}

type ServerConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// SetDefaults registers every key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "data")
	v.SetDefault("listen_addr", ":8000")
	v.SetDefault("target_site", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("crawl.max_pages", 15)
	v.SetDefault("crawl.concurrency", 4)
	v.SetDefault("crawl.rate_limit", 5)
	v.SetDefault("crawl.timeout", 8*time.Second)
	v.SetDefault("crawl.retries", 1)
	v.SetDefault("crawl.user_agent", "seasec-crawler/1.0")
	v.SetDefault("model.trees", 100)
	v.SetDefault("model.sample_size", 256)
	v.SetDefault("model.seed", 42)
	v.SetDefault("report.order", string(report.OrderByRisk))
	v.SetDefault("report.renderers", []string{"pdf", "png"})
	v.SetDefault("report.pdf_command", "")
	v.SetDefault("report.keep_runs", 5)
	v.SetDefault("report.title", "SEA-SEC Risk Report")
	v.SetDefault("server.request_timeout", 60*time.Second)
}

// Load resolves defaults, the optional YAML file at path and the
// environment into a validated Config. Flags bound to v beforehand take
// precedence over all of them.
func Load(v *viper.Viper, path string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("data_dir", EnvPrefix+"_DATA_DIR", "DATA_DIR"); err != nil {
		return Config{}, errors.Wrap(err, "bind DATA_DIR")
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var result error
	add := func(format string, args ...interface{}) {
		result = multierror.Append(result, errors.Newf(format, args...))
	}

	if strings.TrimSpace(c.DataDir) == "" {
		add("data_dir must not be empty")
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		add("listen_addr must not be empty")
	}
	if c.TargetSite != "" {
		if u, err := url.Parse(c.TargetSite); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add("target_site %q is not an absolute http(s) URL", c.TargetSite)
		}
	}
	switch strings.ToLower(c.Log.Encoding) {
	case "json", "console":
	default:
		add("log.encoding %q must be json or console", c.Log.Encoding)
	}
	if c.Crawl.MaxPages < 1 {
		add("crawl.max_pages must be at least 1, got %d", c.Crawl.MaxPages)
	}
	if c.Crawl.Concurrency < 1 {
		add("crawl.concurrency must be at least 1, got %d", c.Crawl.Concurrency)
	}
	if c.Crawl.RateLimit < 0 {
		add("crawl.rate_limit must not be negative")
	}
	if c.Crawl.Timeout <= 0 {
		add("crawl.timeout must be positive")
	}
	if c.Crawl.Retries < 0 {
		add("crawl.retries must not be negative")
	}
	if c.Model.Trees < 1 {
		add("model.trees must be at least 1, got %d", c.Model.Trees)
	}
	if c.Model.SampleSize < 1 {
		add("model.sample_size must be at least 1, got %d", c.Model.SampleSize)
	}
	if _, ok := report.ParseOrder(c.Report.Order); !ok {
		add("report.order %q must be risk or input", c.Report.Order)
	}
	for _, r := range c.Report.Renderers {
		if r != "pdf" && r != "png" {
			add("report.renderers: unknown renderer %q", r)
		}
	}
	if c.Report.KeepRuns < 0 {
		add("report.keep_runs must not be negative")
	}
	if c.Server.RequestTimeout <= 0 {
		add("server.request_timeout must be positive")
	}

	if result != nil {
		return errors.WithHint(errors.Wrap(result, "invalid configuration"), "check the config file and SEASEC_* environment variables")
	}
	return nil
}

func (c Config) ModelPath() string  { return filepath.Join(c.DataDir, "models", "isoforest.json") }
func (c Config) ReportsDir() string { return filepath.Join(c.DataDir, "reports") }
func (c Config) EventsPath() string { return filepath.Join(c.DataDir, "events.jsonl") }
func (c Config) SitePath() string   { return filepath.Join(c.DataDir, "site.yaml") }

// Renderers builds the optional report renderers in configured order.
func (c Config) Renderers() []report.Renderer {
	out := make([]report.Renderer, 0, len(c.Report.Renderers))
	for _, name := range c.Report.Renderers {
		switch name {
		case "pdf":
			if fields := strings.Fields(c.Report.PDFCommand); len(fields) > 0 {
				out = append(out, report.CommandRenderer{Name: "pdf", Command: fields[0], Args: fields[1:]})
				continue
			}
			out = append(out, report.PDFRenderer{})
		case "png":
			out = append(out, report.PNGRenderer{})
		}
	}
	return out
}
