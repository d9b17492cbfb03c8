// Tests for the config package covering [Load] behavior (defaults, overrides,
// missing files, malformed input, migration), validation ([Config.Validate]),
// serialization round-trips ([Config.Save]), and [ConfigDocs] completeness.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"tools.zach/dev/seer/internal/migrate"
)

// ///////////////////////////////////////////////
// Load
// ///////////////////////////////////////////////

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		noFile  bool // if true, skip writing a config file
		wantErr bool
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:   "defaults from minimal config",
			config: "version = 1\n",
			check: func(t *testing.T, cfg *Config) {
				t.Helper()
				def := DefaultConfig()
				if cfg.REST.Port != def.REST.Port {
					t.Errorf("REST.Port = %d, want %d", cfg.REST.Port, def.REST.Port)
				}
				if cfg.Notify.SocketFile != def.Notify.SocketFile {
					t.Errorf("SocketFile = %q, want %q", cfg.Notify.SocketFile, def.Notify.SocketFile)
				}
			},
		},
		{
			name: "user overrides applied",
			config: `
version = 1

[rest]
port = 9001

[notify]
socket_file = "/run/seer/notify"
network = "unix"
poll_interval_seconds = 1

[knowledge]
sources = ["/etc/seer/**/*.yaml"]
`,
			check: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.REST.Port != 9001 {
					t.Errorf("REST.Port = %d, want 9001", cfg.REST.Port)
				}
				if cfg.Notify.SocketFile != "/run/seer/notify" {
					t.Errorf("SocketFile = %q", cfg.Notify.SocketFile)
				}
				if cfg.Notify.Network != "unix" {
					t.Errorf("Network = %q, want unix", cfg.Notify.Network)
				}
				if cfg.Notify.PollInterval() != time.Second {
					t.Errorf("PollInterval = %v, want 1s", cfg.Notify.PollInterval())
				}
				// untouched keys keep their defaults
				if cfg.Notify.ConnectTimeout() != 30*time.Second {
					t.Errorf("ConnectTimeout = %v, want 30s", cfg.Notify.ConnectTimeout())
				}
				if len(cfg.Knowledge.Sources) != 1 {
					t.Errorf("Sources = %v, want one pattern", cfg.Knowledge.Sources)
				}
			},
		},
		{
			name:   "missing file returns defaults",
			noFile: true,
			check: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.Version != migrate.Config.CurrentVersion {
					t.Errorf("Version = %d, want %d", cfg.Version, migrate.Config.CurrentVersion)
				}
			},
		},
		{
			name:    "malformed TOML returns error",
			config:  "this is not valid toml [[[",
			wantErr: true,
		},
		{
			name:    "invalid value fails validation",
			config:  "version = 1\n[notify]\nnetwork = \"tcp\"\n",
			wantErr: true,
		},
		{
			name:    "newer schema version is rejected",
			config:  "version = 99\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "config.toml")
			if !tt.noFile {
				writeConfig(t, path, tt.config)
			}

			cfg, err := Load(path)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Errorf("Load(\"\") = %+v, want defaults", cfg)
	}
}

func TestLoad_TooNewWrapsSentinel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeConfig(t, path, "version = 42\n")

	_, err := Load(path)
	if !errors.Is(err, migrate.ErrTooNew) {
		t.Fatalf("Load error = %v, want ErrTooNew", err)
	}
	if _, statErr := os.Stat(path + ".bak"); statErr != nil {
		t.Errorf("expected backup before migration attempt: %v", statErr)
	}
}

// ///////////////////////////////////////////////
// PeekVersion
// ///////////////////////////////////////////////

func TestPeekVersion(t *testing.T) {
	tests := []struct {
		name string
		data string
		want int
	}{
		{
			name: "reads version from TOML",
			data: "version = 3\n[rest]\nport = 1\n",
			want: 3,
		},
		{
			name: "missing version returns 1",
			data: "[rest]\nport = 1\n",
			want: 1,
		},
		{
			name: "unparseable returns 1",
			data: "[[[",
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PeekVersion([]byte(tt.data)); got != tt.want {
				t.Errorf("PeekVersion() = %d, want %d", got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// ExampleConfig
// ///////////////////////////////////////////////

func TestExampleConfig(t *testing.T) {
	cfg := ExampleConfig()
	if cfg == nil {
		t.Fatal("ExampleConfig returned nil")
	}
	if cfg.Version != 1 {
		t.Errorf("Version = %d, want 1", cfg.Version)
	}
	if cfg.REST.Addr() != ":8000" {
		t.Errorf("REST.Addr() = %q, want %q", cfg.REST.Addr(), ":8000")
	}
	var buf strings.Builder
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		t.Fatalf("failed to marshal ExampleConfig: %v", err)
	}
}

// ///////////////////////////////////////////////
// ConfigDocs completeness
// ///////////////////////////////////////////////

func TestConfigDocsComplete(t *testing.T) {
	fields := collectTOMLFields(reflect.TypeOf(Config{}), "")
	for _, field := range fields {
		if _, ok := ConfigDocs[field]; !ok {
			t.Errorf("ConfigDocs missing entry for field %q", field)
		}
	}
}

// collectTOMLFields recursively walks a struct type and returns the
// dot-separated TOML key path for every tagged field.
func collectTOMLFields(typ reflect.Type, prefix string) []string {
	var fields []string
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("toml")
		if tag == "" || tag == "-" {
			continue
		}
		if idx := strings.Index(tag, ","); idx != -1 {
			tag = tag[:idx]
		}
		path := tag
		if prefix != "" {
			path = prefix + "." + tag
		}
		if f.Type.Kind() == reflect.Struct {
			fields = append(fields, collectTOMLFields(f.Type, path)...)
		} else {
			fields = append(fields, path)
		}
	}
	return fields
}

// ///////////////////////////////////////////////
// Marshal field order
// ///////////////////////////////////////////////

func TestConfigMarshalFieldOrder(t *testing.T) {
	var buf strings.Builder
	if err := toml.NewEncoder(&buf).Encode(DefaultConfig()); err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out := buf.String()

	tests := []struct {
		before string
		after  string
	}{
		{"version", "[rest]"},
		{"[rest]", "[notify]"},
		{"[notify]", "[injection]"},
		{"[memory]", "[log]"},
	}

	for _, tt := range tests {
		t.Run(tt.before+"<"+tt.after, func(t *testing.T) {
			bIdx := strings.Index(out, tt.before)
			aIdx := strings.Index(out, tt.after)
			if bIdx < 0 || aIdx < 0 || bIdx > aIdx {
				t.Errorf("expected %q before %q in marshaled output", tt.before, tt.after)
			}
		})
	}
}

// ///////////////////////////////////////////////
// Config.Save round-trip
// ///////////////////////////////////////////////

func TestConfig_Save_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	orig := DefaultConfig()
	orig.REST.Port = 8123
	orig.Memory.File = "/var/lib/seer/memories.json"
	orig.Knowledge.Sources = []string{"a/*.yaml", "b/**/*.yml"}

	if err := orig.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(loaded, orig) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", loaded, orig)
	}
}

// ///////////////////////////////////////////////
// Validate
// ///////////////////////////////////////////////

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(cfg *Config)
		wantErr bool
	}{
		{name: "default config passes", setup: func(cfg *Config) {}},
		{name: "port zero", setup: func(cfg *Config) { cfg.REST.Port = 0 }, wantErr: true},
		{name: "port too large", setup: func(cfg *Config) { cfg.REST.Port = 70000 }, wantErr: true},
		{name: "shutdown timeout zero", setup: func(cfg *Config) { cfg.REST.ShutdownTimeoutSeconds = 0 }, wantErr: true},
		{name: "empty socket", setup: func(cfg *Config) { cfg.Notify.SocketFile = "" }, wantErr: true},
		{name: "tcp network", setup: func(cfg *Config) { cfg.Notify.Network = "tcp" }, wantErr: true},
		{name: "unix network", setup: func(cfg *Config) { cfg.Notify.Network = "unix" }},
		{name: "connect timeout negative", setup: func(cfg *Config) { cfg.Notify.ConnectTimeoutSeconds = -1 }, wantErr: true},
		{name: "poll interval zero", setup: func(cfg *Config) { cfg.Notify.PollIntervalSeconds = 0 }, wantErr: true},
		{name: "empty memory file", setup: func(cfg *Config) { cfg.Memory.File = "" }, wantErr: true},
		{name: "bad glob", setup: func(cfg *Config) { cfg.Knowledge.Sources = []string{"[unclosed"} }, wantErr: true},
		{name: "good glob", setup: func(cfg *Config) { cfg.Knowledge.Sources = []string{"**/*.yaml"} }},
		{name: "invalid log.level", setup: func(cfg *Config) { cfg.Log.Level = "verbose" }, wantErr: true},
		{name: "upper-case log.level", setup: func(cfg *Config) { cfg.Log.Level = "DEBUG" }},
		{name: "max size zero", setup: func(cfg *Config) { cfg.Log.MaxSizeMB = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.setup(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// ///////////////////////////////////////////////
// Helpers
// ///////////////////////////////////////////////

// writeConfig writes a TOML config string to path for use by [Load].
func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write test config: %v", err)
	}
}
