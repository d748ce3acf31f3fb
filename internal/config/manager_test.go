package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
logging:
  level: debug
  console: true
  file:
    enabled: false
    path: ""
storage:
  driver: sqlite
  path: ./routined.db
  busy_timeout: 5s
trigger:
  materialize_spec: "*/2 * * * *"
runner:
  workers: 8
`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.BusyTimeout != "5s" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Trigger.MaterializeSpec != "*/2 * * * *" {
		t.Fatalf("trigger = %+v", cfg.Trigger)
	}
	if cfg.Runner.Workers != 8 {
		t.Fatalf("runner = %+v", cfg.Runner)
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"logging":{"level":"info","console":true,"file":{"enabled":false,"path":""}},"storage":{"driver":"memory","path":""}}`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.Driver != "memory" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
logging:
  level: info
  console: true
  file:
    enabled: false
    path: ""
storage:
  driver: memory
  path: ""
sheduler:
  workers: 3
`)

	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("config with a misspelled section was accepted")
	}
}

func TestLoadRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"logging":{"level":"info","console":true,"file":{"enabled":false,"path":""}},"storage":{"driver":"memory","path":""}}{"extra":1}`)

	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("concatenated JSON was accepted")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("x", "1m30s"); err != nil || d.Seconds() != 90 {
		t.Fatalf("got (%v, %v)", d, err)
	}
	if d, err := ParseDurationField("x", " "); err != nil || d != 0 {
		t.Fatalf("blank got (%v, %v)", d, err)
	}
	if _, err := ParseDurationField("x", "yesterday"); err == nil {
		t.Fatal("invalid duration accepted")
	}
	if _, err := ParseDurationField("x", "-5s"); err == nil {
		t.Fatal("negative duration accepted")
	}
}

func TestParseClockOrDefault(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw     string
		wantH   int
		wantM   int
		wantErr bool
	}{
		{raw: "", wantH: 5, wantM: 0},
		{raw: "00:00", wantH: 0, wantM: 0},
		{raw: "23:59", wantH: 23, wantM: 59},
		{raw: "7:30", wantH: 7, wantM: 30},
		{raw: "24:00", wantErr: true},
		{raw: "12:60", wantErr: true},
		{raw: "noonish", wantErr: true},
	}
	for _, tc := range cases {
		h, m, err := ParseClockOrDefault("x", tc.raw, 5, 0)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: accepted", tc.raw)
			}
			continue
		}
		if err != nil || h != tc.wantH || m != tc.wantM {
			t.Fatalf("%q: got (%d, %d, %v), want (%d, %d)", tc.raw, h, m, err, tc.wantH, tc.wantM)
		}
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Logging: LoggingConfig{Level: "info"}}
	newCfg := &Config{Logging: LoggingConfig{Level: "debug"}, Runner: RunnerConfig{Workers: 2}}

	changed, _ := SummarizeChange(oldCfg, newCfg)
	want := map[string]bool{"logging": true, "runner": true}
	if len(changed) != 2 {
		t.Fatalf("changed = %v", changed)
	}
	for _, c := range changed {
		if !want[c] {
			t.Fatalf("unexpected section %q", c)
		}
	}

	changed, _ = SummarizeChange(newCfg, newCfg)
	if len(changed) != 0 {
		t.Fatalf("identical configs reported changes: %v", changed)
	}
}
