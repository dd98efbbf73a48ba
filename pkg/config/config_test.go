package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type testConfig struct {
	Name  string `yaml:"name"`
	Port  int    `yaml:"port"`
	valid bool
}

func (c *testConfig) Validate() error {
	c.valid = true
	if c.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadExpandsEnvAndValidates(t *testing.T) {
	t.Setenv("CFG_TEST_NAME", "chainpad")
	path := writeFile(t, "name: ${CFG_TEST_NAME}\n")

	cfg := testConfig{Port: 8080}
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "chainpad" || cfg.Port != 8080 || !cfg.valid {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadValidationError(t *testing.T) {
	path := writeFile(t, "port: 0\n")
	cfg := testConfig{Port: 8080}
	err := Load(path, &cfg)
	if err == nil || !strings.Contains(err.Error(), "config validation failed") {
		t.Errorf("err = %v", err)
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := writeFile(t, "port: [\n")
	cfg := testConfig{}
	if err := Load(path, &cfg); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadOptional(t *testing.T) {
	cfg := testConfig{Port: 1}
	found, err := LoadOptional(filepath.Join(t.TempDir(), "missing.yaml"), &cfg)
	if err != nil || found {
		t.Fatalf("missing file: found=%t err=%v", found, err)
	}
	if !cfg.valid {
		t.Error("defaults should still be validated")
	}

	path := writeFile(t, "port: 2\n")
	found, err = LoadOptional(path, &cfg)
	if err != nil || !found || cfg.Port != 2 {
		t.Errorf("existing file: found=%t err=%v cfg=%+v", found, err, cfg)
	}
}
