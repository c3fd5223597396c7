package config

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang-liquidity-planner/internal/liquidity"
	"golang-liquidity-planner/internal/parsers"
	"golang-liquidity-planner/internal/planner"
	"golang-liquidity-planner/internal/reporter"
	"golang-liquidity-planner/pkg/errors"
	"golang-liquidity-planner/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. PLANNER_CUSHION_TARGET
const EnvPrefix = "PLANNER"

// Keys understood in the config file and environment
const (
	KeyReserveCurrency     = "reserve_currency"
	KeyForeignCurrencies   = "foreign_currencies"
	KeyCushionTarget       = "cushion_target"
	KeySellRateNominal     = "sell_rate_nominal"
	KeySellFeeFraction     = "sell_fee_fraction"
	KeyFXMarginFraction    = "fx_margin_fraction"
	KeySaleRounding        = "sale_rounding"
	KeyMinSellAmount       = "min_sell_amount"
	KeyMinKeepForeign      = "min_keep_foreign"
	KeyLiquidityBanks      = "liquidity_banks"
	KeyDefaultMonthlyLimit = "default_monthly_limit"
	KeyOverrideBank        = "override_bank"
	KeyOverrideLimit       = "override_limit"
	KeyExtendableBanks     = "extendable_banks"
	KeyAssessableBanks     = "assessable_banks"
	KeyBankOrder           = "bank_order"
	KeyUnlimitedBank       = "unlimited_bank"
	KeyReceivableMarkers   = "receivable_markers"
	KeyUnlimitedMarkers    = "unlimited_markers"
	KeyBolsaFlatFee        = "bolsa_flat_fee"
	KeyBolsaPercentFee     = "bolsa_percent_fee"
	KeyBuyRateOverride     = "buy_rate_override"
	KeyTimezone            = "timezone"

	KeyCSVDelimiter = "csv_delimiter"
	KeyDecodeLegacy = "decode_legacy"
)

// BindEnv makes v read PLANNER_* environment variables. Dashes in keys map
// to underscores so flag names work too.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// LoadPlannerConfig builds a planner configuration from v on top of the
// defaults. Numbers that are missing, unreadable or negative keep their
// default and log a warning.
func LoadPlannerConfig(v *viper.Viper, log logger.Logger) (*planner.Config, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	log = log.WithComponent("config")
	config := planner.DefaultConfig()

	l := &loader{v: v, log: log}

	config.ReserveCurrency = l.text(KeyReserveCurrency, config.ReserveCurrency)
	config.ForeignCurrencies = l.list(KeyForeignCurrencies, config.ForeignCurrencies)

	config.CushionTarget = l.amount(KeyCushionTarget, config.CushionTarget)
	config.SellRateNominal = l.amount(KeySellRateNominal, config.SellRateNominal)
	config.SellFeeFraction = l.fraction(KeySellFeeFraction, config.SellFeeFraction)
	config.FXMarginFraction = l.amount(KeyFXMarginFraction, config.FXMarginFraction)
	config.SaleRounding = l.granularity(KeySaleRounding, config.SaleRounding)
	config.MinSellAmount = l.amount(KeyMinSellAmount, config.MinSellAmount)
	config.MinKeepForeign = l.amount(KeyMinKeepForeign, config.MinKeepForeign)

	config.LiquidityBanks = l.list(KeyLiquidityBanks, config.LiquidityBanks)
	config.DefaultMonthlyLimit = l.amount(KeyDefaultMonthlyLimit, config.DefaultMonthlyLimit)
	config.OverrideBank = l.text(KeyOverrideBank, config.OverrideBank)
	config.OverrideLimit = l.amount(KeyOverrideLimit, config.OverrideLimit)
	config.ExtendableBanks = l.list(KeyExtendableBanks, config.ExtendableBanks)
	config.AssessableBanks = l.list(KeyAssessableBanks, config.AssessableBanks)
	config.BankOrder = l.list(KeyBankOrder, config.BankOrder)
	config.UnlimitedBank = l.text(KeyUnlimitedBank, config.UnlimitedBank)
	config.ReceivableMarkers = l.list(KeyReceivableMarkers, config.ReceivableMarkers)
	config.UnlimitedMarkers = l.list(KeyUnlimitedMarkers, config.UnlimitedMarkers)

	config.BolsaFlatFee = l.amount(KeyBolsaFlatFee, config.BolsaFlatFee)
	config.BolsaPercentFee = l.fraction(KeyBolsaPercentFee, config.BolsaPercentFee)

	if rate := l.amount(KeyBuyRateOverride, decimal.Zero); rate.IsPositive() {
		config.BuyRateOverride = decimal.NewNullDecimal(rate)
	}

	config.Timezone = l.timezone(KeyTimezone, config.Timezone)

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "planner", config.String(), err).
			WithSuggestion("Check the values in your config file and PLANNER_* environment variables")
	}

	log.WithFields(logger.Fields{
		"reserve":  config.ReserveCurrency,
		"foreign":  strings.Join(config.ForeignCurrencies, ","),
		"cushion":  config.CushionTarget.String(),
		"timezone": config.Timezone,
	}).Debug("Loaded planner configuration")

	return config, nil
}

// loader reads typed values from viper, keeping defaults on bad input
type loader struct {
	v   *viper.Viper
	log logger.Logger
}

func (l *loader) raw(key string) (string, bool) {
	if l.v == nil || !l.v.IsSet(key) {
		return "", false
	}
	s := strings.TrimSpace(l.v.GetString(key))
	return s, s != ""
}

func (l *loader) text(key, fallback string) string {
	if s, ok := l.raw(key); ok {
		return s
	}
	return fallback
}

func (l *loader) list(key string, fallback []string) []string {
	if l.v == nil || !l.v.IsSet(key) {
		return fallback
	}

	// Env values arrive as one string; file values as a sequence
	var items []string
	for _, item := range l.v.GetStringSlice(key) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}

func (l *loader) amount(key string, fallback decimal.Decimal) decimal.Decimal {
	s, ok := l.raw(key)
	if !ok {
		return fallback
	}
	value, err := decimal.NewFromString(s)
	if err != nil || value.IsNegative() {
		l.log.WithFields(logger.Fields{
			"key":     key,
			"value":   s,
			"default": fallback.String(),
		}).Warn("Ignoring invalid number, using default")
		return fallback
	}
	return value
}

// fraction is an amount that must also stay below 1
func (l *loader) fraction(key string, fallback decimal.Decimal) decimal.Decimal {
	value := l.amount(key, fallback)
	if value.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		l.log.WithFields(logger.Fields{
			"key":     key,
			"value":   value.String(),
			"default": fallback.String(),
		}).Warn("Fraction must be below 1, using default")
		return fallback
	}
	return value
}

// granularity is an amount of at least 1
func (l *loader) granularity(key string, fallback decimal.Decimal) decimal.Decimal {
	value := l.amount(key, fallback)
	if value.LessThan(decimal.NewFromInt(1)) {
		l.log.WithFields(logger.Fields{
			"key":     key,
			"value":   value.String(),
			"default": fallback.String(),
		}).Warn("Granularity must be at least 1, using default")
		return fallback
	}
	return value
}

func (l *loader) timezone(key, fallback string) string {
	s, ok := l.raw(key)
	if !ok {
		return fallback
	}
	if _, err := time.LoadLocation(s); err != nil {
		l.log.WithError(err).WithField("timezone", s).Warn("Unknown timezone, using default")
		return fallback
	}
	return s
}

// CreateSourceConfig creates the CSV source configuration. Timestamps without
// a zone are read in the planner's timezone.
func CreateSourceConfig(v *viper.Viper, plannerConfig *planner.Config) (*parsers.SourceConfig, error) {
	config := parsers.DefaultSourceConfig()
	if plannerConfig != nil {
		config.Location = plannerConfig.Location()
	}

	if v != nil {
		if s := v.GetString(KeyCSVDelimiter); s != "" {
			r, size := utf8.DecodeRuneInString(s)
			if size != len(s) {
				return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyCSVDelimiter, s,
					fmt.Errorf("delimiter must be a single character"))
			}
			config.Delimiter = r
		}
		if v.IsSet(KeyDecodeLegacy) {
			config.DecodeLegacy = v.GetBool(KeyDecodeLegacy)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "csv", string(config.Delimiter), err)
	}
	return config, nil
}

// CreateReportConfig creates a report configuration for the specified output format
func CreateReportConfig(format string) *reporter.ReportConfig {
	config := reporter.DefaultReportConfig()

	switch format {
	case "console":
		config.Format = reporter.FormatConsole
	case "json":
		config.Format = reporter.FormatJSON
		config.IncludeParseStats = true
	case "yaml":
		config.Format = reporter.FormatYAML
	case "csv":
		config.Format = reporter.FormatCSV
		config.CSVHeaders = true
		config.CSVDelimiter = ','
		config.IncludeDiagnostics = false // CSV is for placement rows
		config.IncludeParseStats = false
	}

	return config
}

// CreateLoggerConfig picks the process logger configuration. --verbose wins
// over --log-level.
func CreateLoggerConfig(verbose bool, level string) (*logger.Config, error) {
	if verbose {
		return logger.DebugConfig(), nil
	}

	config := logger.DefaultConfig()
	if level != "" {
		config.Level = logger.Level(strings.ToLower(level))
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "log-level", level, err).
			WithSuggestion("Use one of: debug, info, warn, error")
	}
	return config, nil
}

// ProgressPrinter formats service progress for a terminal
func ProgressPrinter(write func(string)) liquidity.ProgressCallback {
	return func(p liquidity.Progress) {
		write(fmt.Sprintf("[%d/%d] %s (%.1f%% complete)", p.CompletedSteps, p.TotalSteps, p.Step, p.PercentComplete()))
	}
}
