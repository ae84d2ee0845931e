package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"API_PORT", "STORE", "INVITATION_TTL_DAYS", "INVITE_RATE_LIMIT", "EMAIL_WORKERS", "CORS_ALLOWED_ORIGINS"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.UseMemoryStore() {
		t.Error("memory store should not be the default")
	}
	if got := cfg.InvitationTTL(); got != 7*24*time.Hour {
		t.Errorf("InvitationTTL() = %v, want 7 days", got)
	}
	if cfg.InviteRateLimit != 20 || cfg.InviteRateWindow() != time.Hour {
		t.Errorf("rate limit = %d per %v, want 20 per hour", cfg.InviteRateLimit, cfg.InviteRateWindow())
	}
	if cfg.EmailWorkers != 2 {
		t.Errorf("EmailWorkers = %d, want 2", cfg.EmailWorkers)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE", "Memory")
	t.Setenv("INVITATION_RETENTION_DAYS", "30")
	t.Setenv("INVITE_RATE_LIMIT", "not-a-number")
	t.Setenv("SMTP_USE_TLS", "yes")
	t.Setenv("SEED_DEMO_DATA", "1")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg := Load()
	if !cfg.UseMemoryStore() {
		t.Error("STORE=Memory should select the memory store")
	}
	if cfg.InvitationRetention() != 30*24*time.Hour {
		t.Errorf("InvitationRetention() = %v", cfg.InvitationRetention())
	}
	if cfg.InviteRateLimit != 20 {
		t.Errorf("invalid int should fall back to default, got %d", cfg.InviteRateLimit)
	}
	if !cfg.SMTPUseTLS {
		t.Error("SMTP_USE_TLS=yes should enable TLS")
	}
	if !cfg.SeedDemoData {
		t.Error("SEED_DEMO_DATA=1 should enable seeding")
	}
	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.AllowedOrigins) != len(want) {
		t.Fatalf("AllowedOrigins = %v, want %v", cfg.AllowedOrigins, want)
	}
	for i := range want {
		if cfg.AllowedOrigins[i] != want[i] {
			t.Errorf("AllowedOrigins[%d] = %q, want %q", i, cfg.AllowedOrigins[i], want[i])
		}
	}
}
