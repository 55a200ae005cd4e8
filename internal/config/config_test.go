package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deskmail.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadExpandsEnvAndDefaults(t *testing.T) {
	t.Setenv("DESKMAIL_TEST_PASSWORD", "s3cret")
	path := writeConfig(t, `
backend:
  provider: imap
  host: imap.example.com
  username: me@example.com
  password: ${DESKMAIL_TEST_PASSWORD}
  manager_name: Dana Boss
smtp:
  provider: smtp
  host: smtp.example.com
  password: ${DESKMAIL_TEST_UNSET}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend.Password != "s3cret" {
		t.Errorf("Backend.Password = %q", cfg.Backend.Password)
	}
	if cfg.SMTP.Password != "${DESKMAIL_TEST_UNSET}" {
		t.Errorf("unset variables should be kept verbatim, got %q", cfg.SMTP.Password)
	}
	if cfg.Backend.UserAddress != "me@example.com" || cfg.SMTP.FromAddress != "me@example.com" {
		t.Errorf("user address defaults = %q / %q", cfg.Backend.UserAddress, cfg.SMTP.FromAddress)
	}
	if cfg.Backend.Port != 993 || cfg.SMTP.Port != 587 || cfg.Backend.SentFolder != "Sent" {
		t.Errorf("port/folder defaults not applied: %+v", cfg.Backend)
	}
	if cfg.LLM.MaxIterations != 10 || cfg.Server.Name != "deskmail" {
		t.Errorf("LLM/server defaults not applied")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected validation error: imap provider without host")
	}

	path := writeConfig(t, "backend:\n  provider: memory\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "./deskmail.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{Backend: BackendConfig{Provider: "memory"}}, false},
		{"imap without host", Config{Backend: BackendConfig{Provider: "imap"}}, true},
		{"unknown backend", Config{Backend: BackendConfig{Provider: "exchange"}}, true},
		{"unknown smtp", Config{Backend: BackendConfig{Provider: "memory"}, SMTP: SMTPOutConfig{Provider: "pigeon"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("DESKMAIL_TEST_FROM_DOTENV=yes\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("DESKMAIL_TEST_FROM_DOTENV") })

	if err := LoadEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if os.Getenv("DESKMAIL_TEST_FROM_DOTENV") != "yes" {
		t.Errorf("variable not loaded")
	}
}
