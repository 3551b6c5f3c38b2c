package validator

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds every threshold used by the validators. Values come from a YAML
// file or DefaultConfig.
type Config struct {
	MinLength            int      `yaml:"min_length"`
	MinWordCountOverride int      `yaml:"min_word_count_override"`
	RepeatRunLength      int      `yaml:"repeat_run_length"`
	EvasivePhrases       []string `yaml:"evasive_phrases"`

	ScoreMin             int  `yaml:"score_min"`
	ScoreMax             int  `yaml:"score_max"`
	ScoreThreshold       int  `yaml:"score_threshold"`
	ReformulateAtOrBelow int  `yaml:"reformulate_at_or_below"`
	ElaborateOnBoundary  bool `yaml:"elaborate_on_boundary"`
}

// DefaultConfig returns the thresholds used when no file is configured.
func DefaultConfig() Config {
	return Config{
		MinLength:            5,
		MinWordCountOverride: 5,
		RepeatRunLength:      5,
		EvasivePhrases: []string{
			"no sé", "no se", "no entiendo", "no comprendo", "no te entiendo",
			"no lo sé", "no lo se", "no tengo idea", "no respondí", "no sabría decir",
			"sí", "si", "no", "tal vez", "quizás",
		},
		ScoreMin:             1,
		ScoreMax:             5,
		ScoreThreshold:       3,
		ReformulateAtOrBelow: 1,
		ElaborateOnBoundary:  true,
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig. Keys absent from the
// file keep their default.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read validator config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse validator config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid validator config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that thresholds are coherent.
func (c Config) Validate() error {
	if c.MinLength < 0 {
		return errors.New("min_length must not be negative")
	}
	if c.RepeatRunLength < 2 {
		return errors.New("repeat_run_length must be at least 2")
	}
	if c.MinWordCountOverride < 1 {
		return errors.New("min_word_count_override must be positive")
	}
	if c.ScoreMin >= c.ScoreMax {
		return fmt.Errorf("score_min (%d) must be below score_max (%d)", c.ScoreMin, c.ScoreMax)
	}
	if c.ScoreThreshold < c.ScoreMin || c.ScoreThreshold > c.ScoreMax {
		return fmt.Errorf("score_threshold %d outside [%d,%d]", c.ScoreThreshold, c.ScoreMin, c.ScoreMax)
	}
	if c.ReformulateAtOrBelow >= c.ScoreThreshold {
		return fmt.Errorf("reformulate_at_or_below (%d) must be below score_threshold (%d)", c.ReformulateAtOrBelow, c.ScoreThreshold)
	}
	return nil
}
