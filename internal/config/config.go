// ABOUTME: Settings loading with global + project config merge
// ABOUTME: YAML files via yaml.v3, TOML accepted via BurntSushi/toml; produces backend options

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/mauromedda/openagent-go/internal/backend"
)

// Settings holds the merged configuration.
type Settings struct {
	Backend  BackendSettings `yaml:"backend,omitempty" toml:"backend"`
	LogLevel string          `yaml:"log_level,omitempty" toml:"log_level"`
	LogFile  string          `yaml:"log_file,omitempty" toml:"log_file"`
}

// BackendSettings describes how to launch and talk to the backend process.
// Durations are Go duration strings such as "30s".
type BackendSettings struct {
	Command      string            `yaml:"command,omitempty" toml:"command"`
	Args         []string          `yaml:"args,omitempty" toml:"args"`
	Env          map[string]string `yaml:"env,omitempty" toml:"env"`
	Dir          string            `yaml:"dir,omitempty" toml:"dir"`
	CallTimeout  string            `yaml:"call_timeout,omitempty" toml:"call_timeout"`
	StreamMethod string            `yaml:"stream_method,omitempty" toml:"stream_method"`
	CacheTTL     string            `yaml:"cache_ttl,omitempty" toml:"cache_ttl"`
}

// Load reads and merges global and project-local settings.
// Project settings override global settings. Missing files are not errors.
func Load(projectRoot string) (*Settings, error) {
	global, err := loadDir(GlobalDir())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading global config: %w", err)
	}

	project, err := loadDir(ProjectDir(projectRoot))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	merged := merge(global, project)
	ResolveEnvVars(merged)
	return merged, nil
}

// loadDir reads the first config file present in dir. It returns zero
// Settings and an fs.ErrNotExist error when there is none.
func loadDir(dir string) (*Settings, error) {
	for _, name := range configFileNames {
		s, err := loadFile(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return s, err
	}
	return &Settings{}, fmt.Errorf("no config in %s: %w", dir, fs.ErrNotExist)
}

// loadFile reads Settings from a YAML or TOML file, chosen by extension.
// Returns zero Settings if the file does not exist.
func loadFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return &Settings{}, err
	}

	var s Settings
	switch filepath.Ext(path) {
	case ".toml":
		if _, err := toml.Decode(string(data), &s); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	return &s, nil
}

// merge overlays project settings onto global settings.
// Non-zero project values override global values.
func merge(global, project *Settings) *Settings {
	if global == nil {
		global = &Settings{}
	}
	if project == nil {
		return global
	}

	result := *global
	result.Backend.Args = slices.Clone(global.Backend.Args)
	if global.Backend.Env != nil {
		result.Backend.Env = make(map[string]string, len(global.Backend.Env))
		for k, v := range global.Backend.Env {
			result.Backend.Env[k] = v
		}
	}

	pb := project.Backend
	if pb.Command != "" {
		// A new command brings its own args.
		result.Backend.Command = pb.Command
		result.Backend.Args = slices.Clone(pb.Args)
	} else if len(pb.Args) > 0 {
		result.Backend.Args = slices.Clone(pb.Args)
	}
	if pb.Dir != "" {
		result.Backend.Dir = pb.Dir
	}
	if pb.CallTimeout != "" {
		result.Backend.CallTimeout = pb.CallTimeout
	}
	if pb.StreamMethod != "" {
		result.Backend.StreamMethod = pb.StreamMethod
	}
	if pb.CacheTTL != "" {
		result.Backend.CacheTTL = pb.CacheTTL
	}
	if project.LogLevel != "" {
		result.LogLevel = project.LogLevel
	}
	if project.LogFile != "" {
		result.LogFile = project.LogFile
	}

	// Merge env maps
	if len(pb.Env) > 0 {
		if result.Backend.Env == nil {
			result.Backend.Env = make(map[string]string)
		}
		for k, v := range pb.Env {
			result.Backend.Env[k] = v
		}
	}

	return &result
}

// BackendOptions converts the backend settings into process options.
// An empty command selects backend.DefaultCommand.
func (s *Settings) BackendOptions() (backend.Options, error) {
	b := s.Backend
	opts := backend.Options{
		Command:      b.Command,
		Args:         slices.Clone(b.Args),
		Dir:          b.Dir,
		StreamMethod: b.StreamMethod,
	}
	if opts.Command == "" {
		opts.Command = backend.DefaultCommand[0]
		if len(opts.Args) == 0 {
			opts.Args = slices.Clone(backend.DefaultCommand[1:])
		}
	}

	keys := make([]string, 0, len(b.Env))
	for k := range b.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		opts.Env = append(opts.Env, k+"="+b.Env[k])
	}

	timeout, err := parseDuration("backend.call_timeout", b.CallTimeout)
	if err != nil {
		return backend.Options{}, err
	}
	opts.CallTimeout = timeout
	return opts, nil
}

// CacheTTL returns the typed-layer cache lifetime, defaulting to
// backend.DefaultCacheTTL. "0s" disables the cache.
func (s *Settings) CacheTTL() (time.Duration, error) {
	if s.Backend.CacheTTL == "" {
		return backend.DefaultCacheTTL, nil
	}
	return parseDuration("backend.cache_ttl", s.Backend.CacheTTL)
}

func parseDuration(field, v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %q", field, v)
	}
	return d, nil
}
