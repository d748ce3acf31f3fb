package config

// Config is the on-disk configuration. YAML and JSON are both accepted;
// YAML is converted to JSON first so one strict decoder covers both.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging      LoggingConfig      `json:"logging"`
	Storage      StorageConfig      `json:"storage"`
	Trigger      TriggerConfig      `json:"trigger,omitempty"`
	Runner       RunnerConfig       `json:"runner,omitempty"`
	Materializer MaterializerConfig `json:"materializer,omitempty"`
	Archiver     ArchiverConfig     `json:"archiver,omitempty"`
	Pprof        PprofConfig        `json:"pprof,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./routined.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// TriggerConfig holds the cron specs of the two periodic sweeps. Both
// default to every minute; 5-field and 6-field (with seconds) specs are
// accepted.
type TriggerConfig struct {
	MaterializeSpec string `json:"materialize_spec,omitempty"`
	CloseOutSpec    string `json:"close_out_spec,omitempty"`
}

// RunnerConfig controls the per-user job pool.
//
// Defaults (when fields are omitted/zero):
//   - workers: 4
//   - queue_size: 256
//   - default_timeout: "0s" (disabled)
//   - retry_base: "500ms"
//   - retry_max_delay: "15s"
type RunnerConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	RetryMax       int    `json:"retry_max,omitempty"`
	RetryBase      string `json:"retry_base,omitempty"`
	RetryMaxDelay  string `json:"retry_max_delay,omitempty"`
}

// MaterializerConfig tunes the daily task serving. DefaultTime ("HH:MM",
// local) applies to stages without a serving slot of their own; it defaults
// to "05:00" when omitted, and "00:00" is a real midnight slot.
type MaterializerConfig struct {
	DefaultTime string `json:"default_time,omitempty"`
	PageSize    int    `json:"page_size,omitempty"`
	UserTimeout string `json:"user_timeout,omitempty"`
}

type ArchiverConfig struct {
	PageSize    int    `json:"page_size,omitempty"`
	UserTimeout string `json:"user_timeout,omitempty"`
}

// PprofConfig controls the optional diagnostics HTTP server. A
// non-loopback addr requires token or allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled,omitempty"`
	Addr          string `json:"addr,omitempty"`
	Prefix        string `json:"prefix,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
	MemProfileRate       int `json:"mem_profile_rate,omitempty"`
}
