// ABOUTME: Tests for environment variable expansion in config
// ABOUTME: Validates ${VAR} replacement for set, unset, and nested patterns

package config

import (
	"testing"
)

func TestExpandEnv_Set(t *testing.T) {
	t.Setenv("TEST_PYTHON", "/usr/bin/python3")
	result := expandEnv("${TEST_PYTHON}")
	if result != "/usr/bin/python3" {
		t.Errorf("expandEnv = %q; want %q", result, "/usr/bin/python3")
	}
}

func TestExpandEnv_Unset(t *testing.T) {
	result := expandEnv("${DEFINITELY_NOT_SET_12345}")
	if result != "" {
		t.Errorf("expandEnv = %q; want empty for unset var", result)
	}
}

func TestExpandEnv_Mixed(t *testing.T) {
	t.Setenv("MY_VENV", "/opt/venv")
	result := expandEnv("${MY_VENV}/bin/python")
	if result != "/opt/venv/bin/python" {
		t.Errorf("expandEnv = %q; want %q", result, "/opt/venv/bin/python")
	}
}

func TestExpandEnv_NoPattern(t *testing.T) {
	result := expandEnv("plain string")
	if result != "plain string" {
		t.Errorf("expandEnv = %q; want %q", result, "plain string")
	}
}

func TestExpandEnv_Empty(t *testing.T) {
	result := expandEnv("")
	if result != "" {
		t.Errorf("expandEnv = %q; want empty", result)
	}
}

func TestResolveEnvVars_SettingsFields(t *testing.T) {
	t.Setenv("TEST_ROOT", "/srv/openagent")
	t.Setenv("TEST_KEY", "sk-123")

	s := &Settings{
		Backend: BackendSettings{
			Command: "${TEST_ROOT}/bin/python",
			Args:    []string{"${TEST_ROOT}/server.py"},
			Dir:     "${TEST_ROOT}",
			Env:     map[string]string{"OPENAI_API_KEY": "${TEST_KEY}"},
		},
		LogFile: "${TEST_ROOT}/agent.log",
	}

	ResolveEnvVars(s)

	if s.Backend.Command != "/srv/openagent/bin/python" {
		t.Errorf("Command = %q", s.Backend.Command)
	}
	if s.Backend.Args[0] != "/srv/openagent/server.py" {
		t.Errorf("Args[0] = %q", s.Backend.Args[0])
	}
	if s.Backend.Dir != "/srv/openagent" {
		t.Errorf("Dir = %q", s.Backend.Dir)
	}
	if s.Backend.Env["OPENAI_API_KEY"] != "sk-123" {
		t.Errorf("Env = %v", s.Backend.Env)
	}
	if s.LogFile != "/srv/openagent/agent.log" {
		t.Errorf("LogFile = %q", s.LogFile)
	}
}
