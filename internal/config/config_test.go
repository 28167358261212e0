package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DB_URL", "")
	t.Setenv("STORAGE_BACKEND", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, 5, cfg.Chat.MaxGroupSize)
	assert.Equal(t, 2, cfg.Chat.MinGroupSize)
	assert.Equal(t, 3, cfg.Chat.FlagThreshold)
	assert.Equal(t, 30*time.Second, cfg.Chat.ResumeGrace)
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:    "missing_jwt_secret",
			env:     map[string]string{"JWT_SECRET": ""},
			wantErr: true,
		},
		{
			name: "db_url_selects_postgres",
			env:  map[string]string{"JWT_SECRET": "s", "DB_URL": "postgres://x", "STORAGE_BACKEND": ""},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, StoragePostgres, cfg.Storage)
			},
		},
		{
			name:    "postgres_without_url",
			env:     map[string]string{"JWT_SECRET": "s", "DB_URL": "", "STORAGE_BACKEND": "postgres"},
			wantErr: true,
		},
		{
			name: "overrides",
			env: map[string]string{
				"JWT_SECRET":          "s",
				"CHAT_MAX_GROUP_SIZE": "3",
				"CHAT_WAIT_TIMEOUT":   "90s",
				"CHAT_FLAG_THRESHOLD": "not-a-number",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 3, cfg.Chat.MaxGroupSize)
				assert.Equal(t, 90*time.Second, cfg.Chat.WaitTimeout)
				assert.Equal(t, 3, cfg.Chat.FlagThreshold)
			},
		},
		{
			name:    "min_above_max",
			env:     map[string]string{"JWT_SECRET": "s", "CHAT_MAX_GROUP_SIZE": "2", "CHAT_MIN_GROUP_SIZE": "4"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}
