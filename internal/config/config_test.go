package config

import (
	"os"
	"strings"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	// Clear environment variables
	os.Clearenv()
	
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg == nil {
		t.Fatal("Config should not be nil")
	}
	
	// Check defaults
	if cfg.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Port)
	}
	if cfg.DatabasePath != "./triage.db" {
		t.Errorf("Expected default database path './triage.db', got %s", cfg.DatabasePath)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level 'info', got %s", cfg.LogLevel)
	}
	if cfg.DatabaseDriver != "sqlite" {
		t.Errorf("Expected default database driver 'sqlite', got %s", cfg.DatabaseDriver)
	}
	if cfg.AuthRequired {
		t.Error("Expected default auth to be not required")
	}
	if cfg.BearerAuthSecret != "" {
		t.Error("Expected default bearer auth secret to be empty")
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	// Set environment variables
	os.Setenv("TRIAGE_PORT", "9000")
	os.Setenv("TRIAGE_DATABASE_PATH", "/tmp/test.db")
	os.Setenv("TRIAGE_LOG_LEVEL", "debug")
	os.Setenv("TRIAGE_AUTH_REQUIRED", "true")
	defer func() {
		os.Unsetenv("TRIAGE_PORT")
		os.Unsetenv("TRIAGE_DATABASE_PATH")
		os.Unsetenv("TRIAGE_LOG_LEVEL")
		os.Unsetenv("TRIAGE_AUTH_REQUIRED")
	}()
	
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	
	if cfg.Port != 9000 {
		t.Errorf("Expected port 9000 from env, got %d", cfg.Port)
	}
	if cfg.DatabasePath != "/tmp/test.db" {
		t.Errorf("Expected database path '/tmp/test.db' from env, got %s", cfg.DatabasePath)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level 'debug' from env, got %s", cfg.LogLevel)
	}
	if !cfg.AuthRequired {
		t.Error("Expected auth required from env")
	}
}

func TestLoad_AllowedOriginsCommaSeparated(t *testing.T) {
	os.Setenv("TRIAGE_ALLOWED_ORIGINS", "http://localhost:3000,https://example.com,http://localhost:5173")
	defer os.Unsetenv("TRIAGE_ALLOWED_ORIGINS")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Should have exactly the 3 user-specified origins
	if len(cfg.AllowedOrigins) != 3 {
		t.Fatalf("Expected 3 allowed origins, got %d: %v", len(cfg.AllowedOrigins), cfg.AllowedOrigins)
	}
	
	// Verify user-specified origins are present
	expectedOrigins := map[string]bool{
		"http://localhost:3000": false,
		"https://example.com":   false,
		"http://localhost:5173": false,
	}
	for _, origin := range cfg.AllowedOrigins {
		if _, exists := expectedOrigins[origin]; exists {
			expectedOrigins[origin] = true
		}
	}
	for origin, found := range expectedOrigins {
		if !found {
			t.Errorf("Expected origin %q not found in allowed origins: %v", origin, cfg.AllowedOrigins)
		}
	}
	
	// Verify origins keep the order they were given in
	if cfg.AllowedOrigins[0] != "http://localhost:3000" {
		t.Errorf("Expected first origin 'http://localhost:3000', got %q", cfg.AllowedOrigins[0])
	}
	if cfg.AllowedOrigins[2] != "http://localhost:5173" {
		t.Errorf("Expected last origin 'http://localhost:5173', got %q", cfg.AllowedOrigins[2])
	}
}

func TestLoad_AllowedOriginsCommaSeparatedWithWhitespace(t *testing.T) {
	// BA-5: Verify whitespace handling in TRIAGE_ALLOWED_ORIGINS
	os.Setenv("TRIAGE_ALLOWED_ORIGINS", " http://localhost:3000 , https://example.com , http://localhost:5173 ")
	defer os.Unsetenv("TRIAGE_ALLOWED_ORIGINS")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Should have 3 origins (whitespace trimmed)
	if len(cfg.AllowedOrigins) < 3 {
		t.Errorf("Expected at least 3 allowed origins, got %d", len(cfg.AllowedOrigins))
	}
	
	// Verify whitespace was trimmed
	found := false
	for _, origin := range cfg.AllowedOrigins {
		if origin == "http://localhost:3000" {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("Expected 'http://localhost:3000' (whitespace trimmed) in allowed origins, got %v", cfg.AllowedOrigins)
	}
	
	// Verify no origins have leading/trailing whitespace
	for _, origin := range cfg.AllowedOrigins {
		if origin != strings.TrimSpace(origin) {
			t.Errorf("Origin has unexpected whitespace: %q", origin)
		}
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	// Clear environment and use non-existent config file
	os.Clearenv()
	
	cfg, err := Load()
	// Should not error even if config file doesn't exist
	if err != nil {
		t.Fatalf("Load should not error when config file is missing: %v", err)
	}
	if cfg == nil {
		t.Fatal("Config should not be nil even without config file")
	}
}
