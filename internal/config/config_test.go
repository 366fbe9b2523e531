package config

import (
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    Config
		wantErr bool
	}{
		{
			name: "defaults",
			env:  map[string]string{},
			want: Default(),
		},
		{
			name: "all overridden",
			env: map[string]string{
				EnvTickInterval: "100ms",
				EnvRetryBase:    "250ms",
				EnvRetryCap:     "2s",
				EnvMetricsAddr:  "127.0.0.1:9090",
			},
			want: Config{
				TickInterval: 100 * time.Millisecond,
				RetryBase:    250 * time.Millisecond,
				RetryCap:     2 * time.Second,
				MetricsAddr:  "127.0.0.1:9090",
			},
		},
		{
			name:    "invalid duration",
			env:     map[string]string{EnvTickInterval: "soon"},
			wantErr: true,
		},
		{
			name:    "negative interval",
			env:     map[string]string{EnvTickInterval: "-1s"},
			wantErr: true,
		},
		{
			name:    "cap below base",
			env:     map[string]string{EnvRetryBase: "5s", EnvRetryCap: "1s"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate, got %v", err)
	}

	cfg.RetryBase = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for zero retry base")
	}
}
