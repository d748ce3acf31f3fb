package config

import (
	"strings"

	logx "routined/pkg/logx"
)

// SummarizeChange returns the list of changed top-level sections plus safe
// structured attrs for logging the reload.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
		)
	}
	if oldCfg.Trigger != newCfg.Trigger {
		changed = append(changed, "trigger")
		attrs = append(attrs,
			logx.String("trigger.materialize_spec", newCfg.Trigger.MaterializeSpec),
			logx.String("trigger.close_out_spec", newCfg.Trigger.CloseOutSpec),
		)
	}
	if oldCfg.Runner != newCfg.Runner {
		changed = append(changed, "runner")
		attrs = append(attrs,
			logx.Int("runner.workers", newCfg.Runner.Workers),
			logx.Int("runner.queue_size", newCfg.Runner.QueueSize),
		)
	}
	if oldCfg.Materializer != newCfg.Materializer {
		changed = append(changed, "materializer")
		attrs = append(attrs,
			logx.String("materializer.default_time", newCfg.Materializer.DefaultTime),
			logx.Int("materializer.page_size", newCfg.Materializer.PageSize),
		)
	}
	if oldCfg.Archiver != newCfg.Archiver {
		changed = append(changed, "archiver")
		attrs = append(attrs, logx.Int("archiver.page_size", newCfg.Archiver.PageSize))
	}
	if oldCfg.Pprof != newCfg.Pprof {
		changed = append(changed, "pprof")
		attrs = append(attrs,
			logx.Bool("pprof.enabled", newCfg.Pprof.Enabled),
			logx.String("pprof.addr", newCfg.Pprof.Addr),
		)
	}
	return changed, attrs
}
