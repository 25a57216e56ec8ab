package config

import (
	"testing"
	"time"

	"github.com/interaction-monitor/pkg/models"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
		check   func(t *testing.T, c *Config)
	}{
		{
			name: "defaults",
			env: map[string]string{
				"DATABASE_URL": "postgres://localhost/monitor",
				"REDIS_URL":    "redis://localhost:6379/0",
			},
			check: func(t *testing.T, c *Config) {
				if c.Port != "8080" || c.RulesFile != "rules.yaml" {
					t.Errorf("Port = %s, RulesFile = %s", c.Port, c.RulesFile)
				}
				if c.BlockSeverity != models.SeverityHigh {
					t.Errorf("BlockSeverity = %s, want high", c.BlockSeverity)
				}
				if c.MatchTimeout != 100*time.Millisecond || c.SyncInterval != 5*time.Second {
					t.Errorf("MatchTimeout = %v, SyncInterval = %v", c.MatchTimeout, c.SyncInterval)
				}
				if c.HistoryLoadLimit != 1000 {
					t.Errorf("HistoryLoadLimit = %d, want 1000", c.HistoryLoadLimit)
				}
			},
		},
		{
			name: "overrides",
			env: map[string]string{
				"DATABASE_URL":       "postgres://localhost/monitor",
				"REDIS_URL":          "redis://localhost:6379/0",
				"PORT":               "9090",
				"BLOCK_SEVERITY":     "Critical",
				"MATCH_TIMEOUT":      "250ms",
				"HISTORY_LOAD_LIMIT": "50",
			},
			check: func(t *testing.T, c *Config) {
				if c.Port != "9090" || c.BlockSeverity != models.SeverityCritical {
					t.Errorf("Port = %s, BlockSeverity = %s", c.Port, c.BlockSeverity)
				}
				if c.MatchTimeout != 250*time.Millisecond || c.HistoryLoadLimit != 50 {
					t.Errorf("MatchTimeout = %v, HistoryLoadLimit = %d", c.MatchTimeout, c.HistoryLoadLimit)
				}
			},
		},
		{
			name: "malformed numbers fall back to defaults",
			env: map[string]string{
				"DATABASE_URL":      "postgres://localhost/monitor",
				"REDIS_URL":         "redis://localhost:6379/0",
				"SYNC_INTERVAL":     "soon",
				"DB_MAX_OPEN_CONNS": "many",
			},
			check: func(t *testing.T, c *Config) {
				if c.SyncInterval != 5*time.Second || c.DBMaxOpenConns != 20 {
					t.Errorf("SyncInterval = %v, DBMaxOpenConns = %d", c.SyncInterval, c.DBMaxOpenConns)
				}
			},
		},
		{
			name:    "missing database url",
			env:     map[string]string{"REDIS_URL": "redis://localhost:6379/0"},
			wantErr: true,
		},
		{
			name:    "missing redis url",
			env:     map[string]string{"DATABASE_URL": "postgres://localhost/monitor"},
			wantErr: true,
		},
		{
			name: "invalid block severity",
			env: map[string]string{
				"DATABASE_URL":   "postgres://localhost/monitor",
				"REDIS_URL":      "redis://localhost:6379/0",
				"BLOCK_SEVERITY": "severe",
			},
			wantErr: true,
		},
		{
			name: "block severity below high",
			env: map[string]string{
				"DATABASE_URL":   "postgres://localhost/monitor",
				"REDIS_URL":      "redis://localhost:6379/0",
				"BLOCK_SEVERITY": "medium",
			},
			wantErr: true,
		},
	}

	keys := []string{
		"DATABASE_URL", "REDIS_URL", "PORT", "BLOCK_SEVERITY", "MATCH_TIMEOUT",
		"HISTORY_LOAD_LIMIT", "SYNC_INTERVAL", "DB_MAX_OPEN_CONNS", "RULES_FILE",
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range keys {
				t.Setenv(k, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			c, err := Load()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, c)
			}
		})
	}
}
