package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"

	"github.com/example/wfm/internal/core/serial"
)

// DirName is the per-workspace configuration directory.
const DirName = ".wfm"

// Config represents the wfm configuration.
type Config struct {
	Version   string          `json:"version"`
	DBPath    string          `json:"db_path,omitempty"`
	KVPath    string          `json:"kv_path,omitempty"`
	Numbering NumberingConfig `json:"numbering"`
	Kafka     KafkaConfig     `json:"kafka"`
	LogLevel  string          `json:"log_level,omitempty"`
	Actor     string          `json:"actor,omitempty"` // recorded in the audit log for CLI edits
}

// NumberingConfig tunes allocation and reconciliation.
type NumberingConfig struct {
	Mode               string   `json:"mode"`
	Timezone           string   `json:"timezone"`
	AllocatorAttempts  int      `json:"allocator_attempts"`
	BackoffMin         Duration `json:"backoff_min"`
	BackoffMax         Duration `json:"backoff_max"`
	CollisionRetries   int      `json:"collision_retries"`
	LockTTL            Duration `json:"lock_ttl"`
	RenumberBatchLimit int      `json:"renumber_batch_limit"`
	ApplyConcurrency   int      `json:"apply_concurrency"`
}

// KafkaConfig configures the record event bus. No brokers disables it.
type KafkaConfig struct {
	Brokers []string `json:"brokers,omitempty"`
	Topic   string   `json:"topic,omitempty"`
	GroupID string   `json:"group_id,omitempty"`
}

// Enabled reports whether events go over Kafka.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// Duration is a time.Duration that reads and writes as "30s".
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.Wrap(err, "duration must be a string like \"30s\"")
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", s)
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version:  "1",
		LogLevel: "info",
		Numbering: NumberingConfig{
			Mode:               string(serial.ModePerBranchYear),
			Timezone:           "UTC",
			AllocatorAttempts:  10,
			BackoffMin:         Duration(10 * time.Millisecond),
			BackoffMax:         Duration(80 * time.Millisecond),
			CollisionRetries:   3,
			LockTTL:            Duration(30 * time.Second),
			RenumberBatchLimit: 5000,
			ApplyConcurrency:   4,
		},
		Kafka: KafkaConfig{
			Topic:   "wfm.records",
			GroupID: "wfm-numbering",
		},
	}
}

// LoadConfig reads .wfm/config.json from dir, then applies WFM_* environment
// overrides. A .env file in dir is loaded first; it never overrides variables
// already set. A missing config.json yields the defaults.
func LoadConfig(dir string) (*Config, error) {
	envPath := filepath.Join(dir, ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, errors.Wrap(err, "failed to load .env")
		}
	}

	cfg := Default()
	path := filepath.Join(dir, DirName, "config.json")
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config")
		}
	case !os.IsNotExist(err):
		return nil, errors.Wrap(err, "failed to read config")
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.fillPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig writes config.json to directory
func SaveConfig(dir string, cfg *Config) error {
	wfmDir := filepath.Join(dir, DirName)
	if err := os.MkdirAll(wfmDir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create %s dir", DirName)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	path := filepath.Join(wfmDir, "config.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write config")
	}

	return nil
}

func (c *Config) applyEnv() error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}
	str("WFM_DB_PATH", &c.DBPath)
	str("WFM_KV_PATH", &c.KVPath)
	str("WFM_NUMBERING_MODE", &c.Numbering.Mode)
	str("WFM_TIMEZONE", &c.Numbering.Timezone)
	str("WFM_KAFKA_TOPIC", &c.Kafka.Topic)
	str("WFM_KAFKA_GROUP_ID", &c.Kafka.GroupID)
	str("WFM_LOG_LEVEL", &c.LogLevel)
	str("WFM_ACTOR", &c.Actor)

	if v := os.Getenv("WFM_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = nil
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				c.Kafka.Brokers = append(c.Kafka.Brokers, b)
			}
		}
	}
	if v := os.Getenv("WFM_ALLOCATOR_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "WFM_ALLOCATOR_ATTEMPTS")
		}
		c.Numbering.AllocatorAttempts = n
	}
	if v := os.Getenv("WFM_LOCK_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(err, "WFM_LOCK_TTL")
		}
		c.Numbering.LockTTL = Duration(d)
	}
	return nil
}

func (c *Config) fillPaths() error {
	if c.DBPath != "" && c.KVPath != "" {
		return nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return errors.Wrap(err, "failed to get home directory")
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(home, DirName, "wfm.db")
	}
	if c.KVPath == "" {
		c.KVPath = filepath.Join(home, DirName, "kv")
	}
	return nil
}

// Validate rejects settings the numbering subsystem cannot run with.
func (c *Config) Validate() error {
	n := c.Numbering
	if _, err := serial.ParseMode(n.Mode); err != nil {
		return err
	}
	if _, err := time.LoadLocation(n.Timezone); err != nil {
		return errors.Wrapf(err, "unknown timezone %q", n.Timezone)
	}
	if n.AllocatorAttempts <= 0 {
		return errors.Newf("allocator_attempts must be positive, got %d", n.AllocatorAttempts)
	}
	if n.CollisionRetries <= 0 {
		return errors.Newf("collision_retries must be positive, got %d", n.CollisionRetries)
	}
	if n.BackoffMin <= 0 || n.BackoffMax < n.BackoffMin {
		return errors.Newf("invalid backoff window %s..%s", n.BackoffMin.Std(), n.BackoffMax.Std())
	}
	if n.LockTTL.Std() < time.Second {
		return errors.Newf("lock_ttl must be at least 1s, got %s", n.LockTTL.Std())
	}
	if n.RenumberBatchLimit <= 0 {
		return errors.Newf("renumber_batch_limit must be positive, got %d", n.RenumberBatchLimit)
	}
	if n.ApplyConcurrency <= 0 {
		return errors.Newf("apply_concurrency must be positive, got %d", n.ApplyConcurrency)
	}
	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		return errors.New("kafka.topic is required when brokers are set")
	}
	return nil
}

// Mode returns the parsed numbering mode.
func (c *Config) Mode() serial.Mode {
	m, err := serial.ParseMode(c.Numbering.Mode)
	if err != nil {
		return serial.ModePerBranchYear
	}
	return m
}

// Location returns the time zone used to derive a record's year.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Numbering.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
