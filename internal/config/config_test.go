package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("COMPLETION_API_KEY", "test-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.Store.Driver != "sqlite" || cfg.DBPath != "./data/orientador.db" {
		t.Errorf("unexpected store defaults: driver=%q path=%q", cfg.Store.Driver, cfg.DBPath)
	}
	if cfg.Completion.Model != "deepseek-chat" || cfg.Completion.Timeout != 60*time.Second {
		t.Errorf("unexpected completion defaults: %+v", cfg.Completion)
	}
	if cfg.Interview.QuestionCount != 16 || cfg.Interview.MaxRetries != 3 || !cfg.Interview.FollowUp {
		t.Errorf("unexpected interview defaults: %+v", cfg.Interview)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Errorf("unexpected origins: %v", cfg.AllowedOrigins)
	}
	if cfg.SlogLevel() != slog.LevelInfo {
		t.Errorf("unexpected log level %v", cfg.SlogLevel())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("COMPLETION_API_KEY", "k")
	t.Setenv("INTERVIEW_QUESTION_SOURCE", "pooled")
	t.Setenv("INTERVIEW_QUESTION_COUNT", "10")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Interview.QuestionSource != "pooled" || cfg.Interview.QuestionCount != 10 {
		t.Errorf("interview overrides not applied: %+v", cfg.Interview)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Errorf("expected two origins, got %v", cfg.AllowedOrigins)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("expected debug level")
	}
	if cfg.RateLimit.WindowDuration != 30*time.Second {
		t.Errorf("unexpected window %v", cfg.RateLimit.WindowDuration)
	}
}

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("COMPLETION_API_KEY", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without COMPLETION_API_KEY")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"postgres without url", map[string]string{"STORE_DRIVER": "postgres"}, "DATABASE_URL"},
		{"unknown source", map[string]string{"INTERVIEW_QUESTION_SOURCE": "random"}, "INTERVIEW_QUESTION_SOURCE"},
		{"unknown validator", map[string]string{"INTERVIEW_VALIDATOR_MODE": "magic"}, "INTERVIEW_VALIDATOR_MODE"},
		{"zero questions", map[string]string{"INTERVIEW_QUESTION_COUNT": "0"}, "INTERVIEW_QUESTION_COUNT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("COMPLETION_API_KEY", "k")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %s, got %v", tt.want, err)
			}
		})
	}
}
