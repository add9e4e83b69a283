package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config carries every tunable the service reads from the environment.
// The error caps and the default year are configuration on purpose: the API
// response and the persisted audit record truncate their error lists at
// different limits.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	APIPort     string `env:"API_PORT" envDefault:"8080"`
	APIKey      string `env:"API_KEY"`

	DefaultAnio       int  `env:"DEFAULT_ANIO" envDefault:"2025"`
	APIErrorLimit     int  `env:"API_ERROR_LIMIT" envDefault:"20"`
	AuditErrorLimit   int  `env:"AUDIT_ERROR_LIMIT" envDefault:"100"`
	PreviewRowLimit   int  `env:"PREVIEW_ROW_LIMIT" envDefault:"50"`
	PreviewErrorLimit int  `env:"PREVIEW_ERROR_LIMIT" envDefault:"20"`
	StrictPhaseOrder  bool `env:"STRICT_PHASE_ORDER" envDefault:"false"`

	// Default goals seeded into the configuracion table by cmd/setup, in
	// etapa order 1..6.
	GoalTotal  int   `env:"GOAL_TOTAL" envDefault:"300"`
	GoalEtapas []int `env:"GOAL_ETAPAS" envDefault:"300,250,200,150,100,50"`
}

func New() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment config: %w", err)
	}

	if len(cfg.GoalEtapas) != 6 {
		return nil, fmt.Errorf("GOAL_ETAPAS must list exactly 6 values, got %d", len(cfg.GoalEtapas))
	}

	return &cfg, nil
}
