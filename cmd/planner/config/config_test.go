package config

import (
	"bytes"
	"strings"
	"testing"

	"golang-liquidity-planner/internal/reporter"
	"golang-liquidity-planner/pkg/errors"
	"golang-liquidity-planner/pkg/logger"

	"github.com/spf13/viper"
)

func captureLogger(t *testing.T) (logger.Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	log, err := logger.NewLogger(&logger.Config{
		Level:            logger.WarnLevel,
		Format:           logger.TextFormat,
		Writer:           &buf,
		DisableTimestamp: true,
	})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	return log, &buf
}

func TestLoadPlannerConfigDefaults(t *testing.T) {
	config, err := LoadPlannerConfig(viper.New(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if config.ReserveCurrency != "CUP" {
		t.Errorf("expected reserve CUP, got %s", config.ReserveCurrency)
	}
	if config.CushionTarget.String() != "150000" {
		t.Errorf("expected cushion 150000, got %s", config.CushionTarget)
	}
	if config.BuyRateOverride.Valid {
		t.Error("expected no buy rate override")
	}
	if config.Timezone != "America/Havana" {
		t.Errorf("expected America/Havana, got %s", config.Timezone)
	}
}

func TestLoadPlannerConfigOverrides(t *testing.T) {
	v := viper.New()
	v.Set(KeyCushionTarget, "200000")
	v.Set(KeySellRateNominal, "480.5")
	v.Set(KeyForeignCurrencies, []string{"usd"})
	v.Set(KeyBankOrder, "METRO, BPA,BANDEC")
	v.Set(KeyBuyRateOverride, "330")
	v.Set(KeyTimezone, "UTC")

	config, err := LoadPlannerConfig(v, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if config.CushionTarget.String() != "200000" {
		t.Errorf("expected cushion 200000, got %s", config.CushionTarget)
	}
	if config.SellRateNominal.String() != "480.5" {
		t.Errorf("expected sell rate 480.5, got %s", config.SellRateNominal)
	}
	if len(config.ForeignCurrencies) != 1 || config.ForeignCurrencies[0] != "usd" {
		t.Errorf("unexpected foreign currencies %v", config.ForeignCurrencies)
	}
	if strings.Join(config.BankOrder, "|") != "METRO|BPA|BANDEC" {
		t.Errorf("unexpected bank order %v", config.BankOrder)
	}
	if !config.BuyRateOverride.Valid || config.BuyRateOverride.Decimal.String() != "330" {
		t.Errorf("expected buy rate override 330, got %v", config.BuyRateOverride)
	}
	if config.Timezone != "UTC" {
		t.Errorf("expected UTC, got %s", config.Timezone)
	}
}

func TestLoadPlannerConfigFallsBackOnBadNumbers(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non-numeric cushion", KeyCushionTarget, "lots"},
		{"negative cushion", KeyCushionTarget, "-5"},
		{"fee at one", KeySellFeeFraction, "1"},
		{"non-numeric fee", KeyBolsaPercentFee, "1%"},
		{"zero rounding", KeySaleRounding, "0"},
		{"fractional rounding", KeySaleRounding, "0.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, buf := captureLogger(t)
			v := viper.New()
			v.Set(tt.key, tt.value)

			config, err := LoadPlannerConfig(v, log)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			defaults, _ := LoadPlannerConfig(viper.New(), log)
			if config.String() != defaults.String() || !config.BolsaPercentFee.Equal(defaults.BolsaPercentFee) {
				t.Errorf("expected defaults to be kept, got %s", config)
			}
			if !strings.Contains(buf.String(), tt.key) {
				t.Errorf("expected a warning naming %s, got %q", tt.key, buf.String())
			}
		})
	}
}

func TestLoadPlannerConfigIgnoresNonPositiveBuyRate(t *testing.T) {
	v := viper.New()
	v.Set(KeyBuyRateOverride, "0")

	config, err := LoadPlannerConfig(v, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.BuyRateOverride.Valid {
		t.Error("expected zero buy rate override to stay unset")
	}
}

func TestLoadPlannerConfigUnknownTimezone(t *testing.T) {
	log, buf := captureLogger(t)
	v := viper.New()
	v.Set(KeyTimezone, "Mars/Olympus")

	config, err := LoadPlannerConfig(v, log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.Timezone != "America/Havana" {
		t.Errorf("expected default timezone, got %s", config.Timezone)
	}
	if !strings.Contains(buf.String(), "Unknown timezone") {
		t.Errorf("expected a timezone warning, got %q", buf.String())
	}
}

func TestLoadPlannerConfigRejectsConflicts(t *testing.T) {
	v := viper.New()
	v.Set(KeyForeignCurrencies, "CUP")

	_, err := LoadPlannerConfig(v, nil)
	if err == nil {
		t.Fatal("expected error when reserve currency is also foreign")
	}
	plannerErr, ok := errors.AsPlannerError(err)
	if !ok || plannerErr.Category != errors.CategoryConfiguration {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestLoadPlannerConfigFromEnvironment(t *testing.T) {
	t.Setenv("PLANNER_CUSHION_TARGET", "90000")
	t.Setenv("PLANNER_FOREIGN_CURRENCIES", "USD,EUR")

	v := viper.New()
	BindEnv(v)

	config, err := LoadPlannerConfig(v, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.CushionTarget.String() != "90000" {
		t.Errorf("expected cushion 90000, got %s", config.CushionTarget)
	}
	if strings.Join(config.ForeignCurrencies, ",") != "USD,EUR" {
		t.Errorf("unexpected foreign currencies %v", config.ForeignCurrencies)
	}
}

func TestCreateSourceConfig(t *testing.T) {
	plannerConfig, err := LoadPlannerConfig(viper.New(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	config, err := CreateSourceConfig(viper.New(), plannerConfig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.Delimiter != ',' {
		t.Errorf("expected Delimiter ',', got '%c'", config.Delimiter)
	}
	if config.Location.String() != "America/Havana" {
		t.Errorf("expected America/Havana location, got %s", config.Location)
	}

	v := viper.New()
	v.Set(KeyCSVDelimiter, ";")
	v.Set(KeyDecodeLegacy, false)
	config, err = CreateSourceConfig(v, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.Delimiter != ';' || config.DecodeLegacy {
		t.Errorf("expected ';' delimiter without legacy decoding, got %q %v", config.Delimiter, config.DecodeLegacy)
	}

	v.Set(KeyCSVDelimiter, ";;")
	if _, err := CreateSourceConfig(v, nil); err == nil {
		t.Error("expected error for multi-character delimiter")
	}
}

func TestCreateReportConfig(t *testing.T) {
	tests := []struct {
		format   string
		expected reporter.OutputFormat
	}{
		{"console", reporter.FormatConsole},
		{"json", reporter.FormatJSON},
		{"yaml", reporter.FormatYAML},
		{"csv", reporter.FormatCSV},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			config := CreateReportConfig(tt.format)
			if config.Format != tt.expected {
				t.Errorf("expected format %s, got %s", tt.expected, config.Format)
			}
			if err := config.Validate(); err != nil {
				t.Errorf("report config should be valid: %v", err)
			}
		})
	}
}

func TestCreateLoggerConfig(t *testing.T) {
	config, err := CreateLoggerConfig(true, "error")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.Level != logger.DebugLevel {
		t.Errorf("expected debug level with verbose, got %s", config.Level)
	}

	config, err = CreateLoggerConfig(false, "INFO")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.Level != logger.InfoLevel {
		t.Errorf("expected info level, got %s", config.Level)
	}

	if _, err := CreateLoggerConfig(false, "loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}
