package deduplication

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestConfigFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(t *testing.T, cfg Config)
	}{
		{
			name:    "no environment variables uses defaults",
			envVars: map[string]string{},
			wantErr: false,
			check: func(t *testing.T, cfg Config) {
				if !cfg.AIEnabled {
					t.Error("AIEnabled = false, want true")
				}
				if cfg.TitleSimilarityThreshold != 0.7 {
					t.Errorf("TitleSimilarityThreshold = %v, want 0.7", cfg.TitleSimilarityThreshold)
				}
				if cfg.DateWindow != 7*24*time.Hour {
					t.Errorf("DateWindow = %v, want 7 days", cfg.DateWindow)
				}
				if cfg.ExcerptChars != 500 {
					t.Errorf("ExcerptChars = %v, want 500", cfg.ExcerptChars)
				}
				if cfg.MaxCandidates != 5 {
					t.Errorf("MaxCandidates = %v, want 5", cfg.MaxCandidates)
				}
			},
		},
		{
			name: "valid custom configuration",
			envVars: map[string]string{
				"DEDUP_AI_ENABLED":                 "false",
				"DEDUP_TITLE_SIMILARITY_THRESHOLD": "0.85",
				"DEDUP_DATE_WINDOW_DAYS":           "3",
				"DEDUP_CONTENT_CHARS":              "250",
				"DEDUP_MAX_CANDIDATES":             "10",
			},
			wantErr: false,
			check: func(t *testing.T, cfg Config) {
				if cfg.AIEnabled {
					t.Error("AIEnabled = true, want false")
				}
				if cfg.TitleSimilarityThreshold != 0.85 {
					t.Errorf("TitleSimilarityThreshold = %v, want 0.85", cfg.TitleSimilarityThreshold)
				}
				if cfg.DateWindow != 3*24*time.Hour {
					t.Errorf("DateWindow = %v, want %v", cfg.DateWindow, 3*24*time.Hour)
				}
				if cfg.ExcerptChars != 250 {
					t.Errorf("ExcerptChars = %v, want 250", cfg.ExcerptChars)
				}
				if cfg.MaxCandidates != 10 {
					t.Errorf("MaxCandidates = %v, want 10", cfg.MaxCandidates)
				}
			},
		},
		{
			name:    "invalid float value",
			envVars: map[string]string{"DEDUP_TITLE_SIMILARITY_THRESHOLD": "high"},
			wantErr: true,
		},
		{
			name:    "invalid int value",
			envVars: map[string]string{"DEDUP_MAX_CANDIDATES": "a few"},
			wantErr: true,
		},
		{
			name:    "invalid bool value",
			envVars: map[string]string{"DEDUP_AI_ENABLED": "maybe"},
			wantErr: true,
		},
		{
			name:    "threshold out of range",
			envVars: map[string]string{"DEDUP_TITLE_SIMILARITY_THRESHOLD": "1.5"},
			wantErr: true,
		},
		{
			name:    "window too large",
			envVars: map[string]string{"DEDUP_DATE_WINDOW_DAYS": "365"},
			wantErr: true,
		},
		{
			name:    "zero candidates",
			envVars: map[string]string{"DEDUP_MAX_CANDIDATES": "0"},
			wantErr: true,
		},
	}

	clearEnv := []string{
		"DEDUP_AI_ENABLED",
		"DEDUP_TITLE_SIMILARITY_THRESHOLD",
		"DEDUP_DATE_WINDOW_DAYS",
		"DEDUP_CONTENT_CHARS",
		"DEDUP_MAX_CANDIDATES",
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range clearEnv {
				_ = os.Unsetenv(key) // Intentionally ignore error in test cleanup
			}
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}
			defer func() {
				for _, key := range clearEnv {
					_ = os.Unsetenv(key)
				}
			}()

			cfg, err := ConfigFromEnv()

			if (err != nil) != tt.wantErr {
				t.Errorf("ConfigFromEnv() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestConfigString(t *testing.T) {
	s := DefaultConfig().String()
	for _, want := range []string{"AI: true", "Threshold: 0.70", "MaxCandidates: 5"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}
