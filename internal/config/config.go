package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Config is the resolved configuration.
type Config struct {
	// Database is the SQLite file holding the local records.
	Database string

	Remote RemoteConfig
	Poll   PollConfig
	Status StatusConfig
	Log    LogConfig
}

// RemoteConfig locates the remote sheet service. An empty URL means no
// remote is configured.
type RemoteConfig struct {
	URL     string
	Timeout time.Duration
}

// PollConfig controls the auto-save scheduler.
type PollConfig struct {
	Interval time.Duration
	// FailureThreshold is the number of consecutive cycles with records
	// left pending before the sync status reports an error.
	FailureThreshold int
}

// StatusConfig controls the status HTTP API. An empty Addr disables it.
type StatusConfig struct {
	Addr string
}

// LogConfig controls logging.
type LogConfig struct {
	Level string
}

// SlogLevel maps Level onto slog. Unknown levels map to Info.
func (l LogConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// raw mirrors the CUE schema; durations stay strings until Resolve.
type raw struct {
	Database string `json:"database"`
	Remote   struct {
		URL     string `json:"url"`
		Timeout string `json:"timeout"`
	} `json:"remote"`
	Poll struct {
		Interval         string `json:"interval"`
		FailureThreshold int    `json:"failure_threshold"`
	} `json:"poll"`
	Status struct {
		Addr string `json:"addr"`
	} `json:"status"`
	Log struct {
		Level string `json:"level"`
	} `json:"log"`
}

// Error reports a configuration value rejected by the schema.
type Error struct {
	Path    string
	Message string
}

func (e *Error) Error() string {
	if e.Path == "" {
		return "config: " + e.Message
	}
	return fmt.Sprintf("config: %s: %s", e.Path, e.Message)
}

// Default returns the schema defaults.
func Default() Config {
	cfg, err := Parse(nil)
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema defaults invalid: %v", err))
	}
	return cfg
}

// Load reads the YAML file at path. A missing file is not an error when
// optional is true; the defaults are returned instead.
func Load(path string, optional bool) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse validates YAML data against the schema and resolves defaults.
func Parse(data []byte) (Config, error) {
	doc := map[string]any{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Config{}, &Error{Message: fmt.Sprintf("invalid YAML: %v", err)}
	}
	if doc == nil {
		doc = map[string]any{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("compile config schema: %w", err)
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(doc))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, schemaError(err)
	}

	var r raw
	if err := v.Decode(&r); err != nil {
		return Config{}, schemaError(err)
	}
	return resolve(r)
}

func resolve(r raw) (Config, error) {
	timeout, err := time.ParseDuration(r.Remote.Timeout)
	if err != nil {
		return Config{}, &Error{Path: "remote.timeout", Message: err.Error()}
	}
	interval, err := time.ParseDuration(r.Poll.Interval)
	if err != nil {
		return Config{}, &Error{Path: "poll.interval", Message: err.Error()}
	}
	if interval <= 0 {
		return Config{}, &Error{Path: "poll.interval", Message: "must be positive"}
	}

	return Config{
		Database: r.Database,
		Remote:   RemoteConfig{URL: r.Remote.URL, Timeout: timeout},
		Poll:     PollConfig{Interval: interval, FailureThreshold: r.Poll.FailureThreshold},
		Status:   StatusConfig{Addr: r.Status.Addr},
		Log:      LogConfig{Level: r.Log.Level},
	}, nil
}

// schemaError reduces a CUE error list to its first entry.
func schemaError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &Error{Message: err.Error()}
	}
	first := errs[0]
	format, args := first.Msg()
	return &Error{
		Path:    strings.Join(first.Path(), "."),
		Message: fmt.Sprintf(format, args...),
	}
}
