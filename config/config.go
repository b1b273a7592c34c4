package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/ridoystarlord/sheetmatch/utils"
)

// EnvPrefix is the prefix for environment overrides.
// SHEETMATCH_THRESHOLDS_AUTO_APPROVE -> thresholds.auto_approve
const EnvPrefix = "SHEETMATCH_"

var configFileNames = []string{"sheetmatch.yaml", "sheetmatch.yml"}

// Thresholds holds every heuristic cut-off used by matching and approval.
// Scores are on the 0-100 scale.
type Thresholds struct {
	Exact             int     `koanf:"exact"`
	ForceExact        int     `koanf:"force_exact"`
	AutoApprove       int     `koanf:"auto_approve"`
	TypeMatchApprove  int     `koanf:"type_match_approve"`
	Lenient           int     `koanf:"lenient"`
	TableSuggestion   int     `koanf:"table_suggestion"`
	ColumnSuggestion  int     `koanf:"column_suggestion"`
	SubstringScore    int     `koanf:"substring_score"`
	Majority          float64 `koanf:"majority"`
	NameWeight        float64 `koanf:"name_weight"`
	TypeWeight        float64 `koanf:"type_weight"`
	LenientTypeCredit int     `koanf:"lenient_type_credit"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Exact:             100,
		ForceExact:        99,
		AutoApprove:       95,
		TypeMatchApprove:  90,
		Lenient:           90,
		TableSuggestion:   80,
		ColumnSuggestion:  80,
		SubstringScore:    80,
		Majority:          0.8,
		NameWeight:        0.9,
		TypeWeight:        0.1,
		LenientTypeCredit: 80,
	}
}

// Validate rejects thresholds that would make the policy incoherent.
func (t Thresholds) Validate() error {
	for name, v := range map[string]int{
		"exact":               t.Exact,
		"force_exact":         t.ForceExact,
		"auto_approve":        t.AutoApprove,
		"type_match_approve":  t.TypeMatchApprove,
		"lenient":             t.Lenient,
		"table_suggestion":    t.TableSuggestion,
		"column_suggestion":   t.ColumnSuggestion,
		"substring_score":     t.SubstringScore,
		"lenient_type_credit": t.LenientTypeCredit,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("threshold %s must be within 0-100, got %d", name, v)
		}
	}
	if t.Majority <= 0 || t.Majority > 1 {
		return fmt.Errorf("threshold majority must be within (0, 1], got %v", t.Majority)
	}
	if t.NameWeight < 0 || t.TypeWeight < 0 || t.NameWeight+t.TypeWeight == 0 {
		return fmt.Errorf("name_weight and type_weight must be non-negative and not both zero")
	}
	if t.AutoApprove > t.Exact || t.TypeMatchApprove > t.AutoApprove {
		return fmt.Errorf("thresholds must satisfy type_match_approve <= auto_approve <= exact")
	}
	return nil
}

type Config struct {
	DatabaseURL      string     `koanf:"database_url"`
	TablePrefix      string     `koanf:"table_prefix"`
	SampleSize       int        `koanf:"sample_size"`
	AutoCreate       bool       `koanf:"auto_create"`
	AutoApproveReady bool       `koanf:"auto_approve_ready"`
	IDConvention     string     `koanf:"id_convention"`
	LogLevel         string     `koanf:"log_level"`
	Thresholds       Thresholds `koanf:"thresholds"`
}

func defaults() map[string]interface{} {
	t := DefaultThresholds()
	return map[string]interface{}{
		"table_prefix":                   "",
		"sample_size":                    5,
		"auto_create":                    false,
		"auto_approve_ready":             false,
		"id_convention":                  "text",
		"log_level":                      "warn",
		"thresholds.exact":               t.Exact,
		"thresholds.force_exact":         t.ForceExact,
		"thresholds.auto_approve":        t.AutoApprove,
		"thresholds.type_match_approve":  t.TypeMatchApprove,
		"thresholds.lenient":             t.Lenient,
		"thresholds.table_suggestion":    t.TableSuggestion,
		"thresholds.column_suggestion":   t.ColumnSuggestion,
		"thresholds.substring_score":     t.SubstringScore,
		"thresholds.majority":            t.Majority,
		"thresholds.name_weight":         t.NameWeight,
		"thresholds.type_weight":         t.TypeWeight,
		"thresholds.lenient_type_credit": t.LenientTypeCredit,
	}
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		SampleSize:   5,
		IDConvention: "text",
		LogLevel:     "warn",
		Thresholds:   DefaultThresholds(),
	}
}

// Load reads defaults, then the config file (explicit path or
// sheetmatch.yaml in the working directory), then SHEETMATCH_ env vars.
func Load(path string) (*Config, error) {
	utils.LoadEnv()

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if cfgFile := findConfigFile(path); cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", cfgFile, err)
		}
	} else if path != "" {
		return nil, fmt.Errorf("config file %s not found", path)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.SampleSize <= 0 {
		return nil, fmt.Errorf("sample_size must be positive, got %d", cfg.SampleSize)
	}
	switch cfg.IDConvention {
	case "text", "uuid":
	default:
		return nil, fmt.Errorf("id_convention must be text or uuid, got %q", cfg.IDConvention)
	}
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps SHEETMATCH_THRESHOLDS_AUTO_APPROVE to thresholds.auto_approve.
// Only the thresholds section is nested, so the first segment decides.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if strings.HasPrefix(key, "thresholds_") {
		return "thresholds." + strings.TrimPrefix(key, "thresholds_")
	}
	return key
}

func findConfigFile(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}
	for _, name := range configFileNames {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}
