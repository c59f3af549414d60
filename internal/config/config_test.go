package config

import (
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", ":memory:")
	t.Setenv("ADMIN_EMAILS", " Admin@liga.pt , ,ops@liga.pt")
	t.Setenv("ALLOWED_ORIGINS", "https://liga.pt, https://app.liga.pt")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Env != EnvDev || cfg.Port != "8080" || cfg.TokenTTL != 24*time.Hour {
		t.Fatalf("defaults = %+v", cfg)
	}
	if len(cfg.AdminEmails) != 2 || !cfg.IsAdmin("admin@liga.pt") || cfg.IsAdmin("fan@liga.pt") {
		t.Fatalf("admins = %v", cfg.AdminEmails)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://app.liga.pt" {
		t.Fatalf("origins = %v", cfg.AllowedOrigins)
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"no secret", map[string]string{"STORE_DRIVER": "sqlite", "DATABASE_URL": ":memory:"}},
		{"postgres without url", map[string]string{"JWT_SECRET": "s", "STORE_DRIVER": "postgres"}},
		{"unknown driver", map[string]string{"JWT_SECRET": "s", "STORE_DRIVER": "mongo"}},
		{"bad ttl", map[string]string{"JWT_SECRET": "s", "STORE_DRIVER": "sqlite", "DATABASE_URL": ":memory:", "TOKEN_TTL": "soon"}},
		{"bad env", map[string]string{"JWT_SECRET": "s", "STORE_DRIVER": "sqlite", "DATABASE_URL": ":memory:", "ENV": "staging"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"JWT_SECRET", "STORE_DRIVER", "DATABASE_URL", "TOKEN_TTL", "ENV"} {
				t.Setenv(k, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := FromEnv(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
