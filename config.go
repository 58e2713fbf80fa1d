package tracepipe

import (
	"io"
	"io/ioutil"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/tracepipe/tracepipe/ratelimit"
	"github.com/tracepipe/tracepipe/writer"
)

// Config holds the tracer's tunables. Durations are strings in
// time.ParseDuration syntax so they read naturally in YAML. Every field
// may be overridden through the environment with a TRACEPIPE_ prefix
// (TRACEPIPE_AGENT_ADDRESS and so on).
type Config struct {
	// ServiceName is recorded on every span that does not set its own.
	ServiceName string `yaml:"service_name"`

	// AgentAddress is the host:port of the collection agent.
	AgentAddress string `yaml:"agent_address"`

	// StatsAddress optionally enables dogstatsd health metrics.
	StatsAddress string `yaml:"stats_address"`

	// FlushInterval is how often buffered traces are shipped.
	FlushInterval string `yaml:"flush_interval"`

	// MaxQueuedTraces bounds the writer queue; overflow is dropped.
	MaxQueuedTraces int `yaml:"max_queued_traces"`

	// BatchSize triggers a flush ahead of the interval.
	BatchSize int `yaml:"batch_size"`

	// SampleRate keeps this fraction of traces (0..1).
	SampleRate float64 `yaml:"sample_rate"`

	// TraceRateLimit caps sampled traces per second. Zero disables
	// tracing entirely, a negative value removes the cap.
	TraceRateLimit float64 `yaml:"trace_rate_limit"`

	// LogRateInterval spaces repeated diagnostic log lines.
	LogRateInterval string `yaml:"log_rate_interval"`

	// Debug switches the internal logger to debug level.
	Debug bool `yaml:"debug"`
}

func defaultConfig() Config {
	return Config{
		ServiceName:     "unnamed-go-service",
		AgentAddress:    writer.DefaultAgentAddress,
		FlushInterval:   writer.DefaultFlushInterval.String(),
		MaxQueuedTraces: writer.DefaultMaxQueuedTraces,
		BatchSize:       writer.DefaultBatchSize,
		SampleRate:      1,
		TraceRateLimit:  ratelimit.Unlimited,
		LogRateInterval: "60s",
	}
}

// ReadConfig reads a YAML config file and applies environment
// overrides on top of it.
func ReadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	return readConfig(f)
}

func readConfig(r io.Reader) (Config, error) {
	c := defaultConfig()

	bts, err := ioutil.ReadAll(r)
	if err != nil {
		return c, err
	}
	if err = yaml.Unmarshal(bts, &c); err != nil {
		return c, errors.Wrap(err, "parsing config")
	}
	if err = envconfig.Process("tracepipe", &c); err != nil {
		return c, errors.Wrap(err, "processing environment")
	}
	return c, nil
}

// EnvConfig returns the default configuration with environment
// overrides applied, for deployments without a config file.
func EnvConfig() (Config, error) {
	c := defaultConfig()
	if err := envconfig.Process("tracepipe", &c); err != nil {
		return c, errors.Wrap(err, "processing environment")
	}
	return c, nil
}

// flushInterval parses the configured flush interval.
func (c Config) flushInterval() (time.Duration, error) {
	if c.FlushInterval == "" {
		return writer.DefaultFlushInterval, nil
	}
	d, err := time.ParseDuration(c.FlushInterval)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid flush_interval %q", c.FlushInterval)
	}
	return d, nil
}

// logRateInterval parses the configured diagnostic log spacing.
func (c Config) logRateInterval() (time.Duration, error) {
	if c.LogRateInterval == "" {
		return 60 * time.Second, nil
	}
	d, err := time.ParseDuration(c.LogRateInterval)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid log_rate_interval %q", c.LogRateInterval)
	}
	return d, nil
}
