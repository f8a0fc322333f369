package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type sample struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

func (s *sample) Validate() error {
	if s.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_ExpandsEnvOverDefaults(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "reader")
	p := writeFile(t, "name: ${SAMPLE_NAME}\n")

	s := sample{Name: "default", Port: 8080}
	if err := Load(p, &s); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "reader" || s.Port != 8080 {
		t.Errorf("got %+v", s)
	}
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	p := writeFile(t, "nmae: typo\n")
	s := sample{Port: 1}
	if err := Load(p, &s); err == nil {
		t.Fatal("unknown key should fail")
	}
}

func TestLoad_RunsValidate(t *testing.T) {
	p := writeFile(t, "port: 0\n")
	s := sample{Port: 1}
	if err := Load(p, &s); err == nil {
		t.Fatal("invalid port should fail validation")
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	p := writeFile(t, "")
	s := sample{Port: 9}
	if err := Load(p, &s); err != nil {
		t.Fatalf("empty file should keep defaults: %v", err)
	}
}

func TestLoadOptional_Missing(t *testing.T) {
	s := sample{Port: 3}
	if err := LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"), &s); err != nil {
		t.Fatalf("missing file: %v", err)
	}
	if err := LoadOptional("", &s); err != nil {
		t.Fatalf("empty name: %v", err)
	}

	bad := sample{}
	if err := LoadOptional("", &bad); err == nil {
		t.Fatal("defaults are still validated")
	}
}
