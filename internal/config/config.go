// ABOUTME: Settings loading with defaults, YAML file, environment, and flag overrides
// ABOUTME: Layered with viper; later layers win over earlier ones

package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mauromedda/medassist/internal/history"
)

// EnvPrefix namespaces environment overrides: MEDASSIST_WEB_LISTEN sets web.listen.
const EnvPrefix = "MEDASSIST"

// Settings holds the effective configuration.
type Settings struct {
	Server     ServerSettings  `mapstructure:"server" yaml:"server"`
	Backend    BackendSettings `mapstructure:"backend" yaml:"backend"`
	Web        WebSettings     `mapstructure:"web" yaml:"web"`
	History    history.Options `mapstructure:"history" yaml:"history"`
	Log        LogSettings     `mapstructure:"log" yaml:"log"`
	PromptsDir string          `mapstructure:"prompts_dir" yaml:"prompts_dir"`
}

// ServerSettings describes the backend subprocess.
type ServerSettings struct {
	// Command is split on whitespace; Args are appended verbatim.
	Command string   `mapstructure:"command" yaml:"command"`
	Args    []string `mapstructure:"args" yaml:"args,omitempty"`
	// Env entries are KEY=VALUE. A list keeps key case, which viper folds
	// for maps.
	Env             []string `mapstructure:"env" yaml:"env,omitempty"`
	Dir             string   `mapstructure:"dir" yaml:"dir,omitempty"`
	ClientName      string   `mapstructure:"client_name" yaml:"client_name"`
	ClientVersion   string   `mapstructure:"client_version" yaml:"client_version"`
	ProtocolVersion string   `mapstructure:"protocol_version" yaml:"protocol_version"`
}

// BackendSettings tunes the facade.
type BackendSettings struct {
	CallTimeout     time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	CloseTimeout    time.Duration `mapstructure:"close_timeout" yaml:"close_timeout"`
	Concurrency     int           `mapstructure:"concurrency" yaml:"concurrency"`
	Temperature     float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens       int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// WebSettings configures the HTTP front-end.
type WebSettings struct {
	Listen          string   `mapstructure:"listen" yaml:"listen"`
	MaxConns        int      `mapstructure:"max_conns" yaml:"max_conns"`
	MaxHistoryChars int      `mapstructure:"max_history_chars" yaml:"max_history_chars"`
	CookieName      string   `mapstructure:"cookie_name" yaml:"cookie_name"`
	CORSOrigins     []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// LogSettings selects level and handler format.
type LogSettings struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// LoadOptions controls where Load looks.
type LoadOptions struct {
	// ConfigFile is an explicit path. It must exist when set.
	ConfigFile string
	// ProjectRoot is where the project-local search starts. Empty means cwd.
	ProjectRoot string
	// Overrides are dotted keys set last, typically from changed CLI flags.
	Overrides map[string]any
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		Server: ServerSettings{
			Command:         "python server.py",
			ClientName:      "medassist",
			ClientVersion:   "1.0.0",
			ProtocolVersion: "2024-11-05",
		},
		Backend: BackendSettings{
			CallTimeout:     30 * time.Second,
			ShutdownTimeout: 3 * time.Second,
			CloseTimeout:    5 * time.Second,
			Concurrency:     64,
			Temperature:     0.7,
			MaxTokens:       200,
		},
		Web: WebSettings{
			Listen:          "127.0.0.1:5001",
			MaxConns:        256,
			MaxHistoryChars: history.DefaultMaxChars,
			CookieName:      "medassist_session",
			CORSOrigins:     []string{"*"},
		},
		History: history.Options{
			Backend:   history.BackendMemory,
			KeyPrefix: history.DefaultKeyPrefix,
			TTL:       history.DefaultTTL,
		},
		Log: LogSettings{Level: "info", Format: "text"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("server.command", d.Server.Command)
	v.SetDefault("server.args", d.Server.Args)
	v.SetDefault("server.env", d.Server.Env)
	v.SetDefault("server.dir", d.Server.Dir)
	v.SetDefault("server.client_name", d.Server.ClientName)
	v.SetDefault("server.client_version", d.Server.ClientVersion)
	v.SetDefault("server.protocol_version", d.Server.ProtocolVersion)

	v.SetDefault("backend.call_timeout", d.Backend.CallTimeout)
	v.SetDefault("backend.shutdown_timeout", d.Backend.ShutdownTimeout)
	v.SetDefault("backend.close_timeout", d.Backend.CloseTimeout)
	v.SetDefault("backend.concurrency", d.Backend.Concurrency)
	v.SetDefault("backend.temperature", d.Backend.Temperature)
	v.SetDefault("backend.max_tokens", d.Backend.MaxTokens)

	v.SetDefault("web.listen", d.Web.Listen)
	v.SetDefault("web.max_conns", d.Web.MaxConns)
	v.SetDefault("web.max_history_chars", d.Web.MaxHistoryChars)
	v.SetDefault("web.cookie_name", d.Web.CookieName)
	v.SetDefault("web.cors_origins", d.Web.CORSOrigins)

	v.SetDefault("history.backend", d.History.Backend)
	v.SetDefault("history.redis_url", d.History.RedisURL)
	v.SetDefault("history.key_prefix", d.History.KeyPrefix)
	v.SetDefault("history.ttl", d.History.TTL)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("prompts_dir", d.PromptsDir)
}

// Load builds Settings from defaults, the resolved config file, MEDASSIST_*
// environment variables, and opts.Overrides, in that order.
func Load(opts LoadOptions) (*Settings, string, error) {
	v := viper.New()
	setDefaults(v)

	path := opts.ConfigFile
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, "", fmt.Errorf("config file %s: %w", path, err)
		}
	} else {
		path = ResolveConfigPath(opts.ProjectRoot)
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, "", fmt.Errorf("loading %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The backend honours the log level variable of the original server.
	if err := v.BindEnv("log.level", EnvPrefix+"_LOG_LEVEL", "BACKEND_LOG_LEVEL"); err != nil {
		return nil, "", fmt.Errorf("binding log level env: %w", err)
	}

	for _, key := range slices.Sorted(maps.Keys(opts.Overrides)) {
		v.Set(key, opts.Overrides[key])
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, "", fmt.Errorf("decoding settings: %w", err)
	}
	ResolveEnvVars(&s)
	return &s, path, nil
}

// Validate rejects settings the backend cannot start with.
func (s *Settings) Validate() error {
	var errs []error
	if len(s.Argv()) == 0 {
		errs = append(errs, errors.New("server.command must not be empty"))
	}
	if s.Backend.CallTimeout <= 0 {
		errs = append(errs, errors.New("backend.call_timeout must be positive"))
	}
	if s.Backend.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("backend.shutdown_timeout must be positive"))
	}
	if s.Backend.CloseTimeout <= 0 {
		errs = append(errs, errors.New("backend.close_timeout must be positive"))
	}
	if s.Backend.Temperature < 0 {
		errs = append(errs, errors.New("backend.temperature must not be negative"))
	}
	if s.Web.MaxHistoryChars <= 0 {
		errs = append(errs, errors.New("web.max_history_chars must be positive"))
	}
	switch s.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: want text or json", s.Log.Format))
	}
	switch s.History.Backend {
	case "", history.BackendMemory, history.BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("history.backend %q: want memory or redis", s.History.Backend))
	}
	return errors.Join(errs...)
}

// Argv returns the subprocess command line.
func (s *Settings) Argv() []string {
	argv := strings.Fields(s.Server.Command)
	return append(argv, s.Server.Args...)
}

// EnvList returns the well-formed KEY=VALUE entries of Server.Env.
func (s *Settings) EnvList() []string {
	out := make([]string, 0, len(s.Server.Env))
	for _, kv := range s.Server.Env {
		if k, _, ok := strings.Cut(kv, "="); ok && k != "" {
			out = append(out, kv)
		}
	}
	return out
}
