package models

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// BalanceRecord is the latest known balance of one tracked instrument.
type BalanceRecord struct {
	CurrencyCode    string          `json:"currency" csv:"currency"`
	BankCode        string          `json:"bank" csv:"bank"`
	OwnerName       string          `json:"owner" csv:"owner"`
	InstrumentLabel string          `json:"label" csv:"label"`
	Amount          decimal.Decimal `json:"amount" csv:"amount"`
	// UnitValue converts one native unit into the unit the aggregator totals
	// that currency class in.
	UnitValue decimal.Decimal `json:"unit_value" csv:"unit_value"`
}

// NewBalanceRecord creates a new BalanceRecord instance
func NewBalanceRecord(currency, bank, owner, label string, amount, unitValue decimal.Decimal) *BalanceRecord {
	return &BalanceRecord{
		CurrencyCode:    NormalizeCurrency(currency),
		BankCode:        strings.TrimSpace(bank),
		OwnerName:       strings.TrimSpace(owner),
		InstrumentLabel: strings.TrimSpace(label),
		Amount:          amount,
		UnitValue:       unitValue,
	}
}

// Text returns owner, bank and label joined for marker matching.
func (r *BalanceRecord) Text() string {
	return strings.Join([]string{r.OwnerName, r.BankCode, r.InstrumentLabel}, " ")
}

// String returns a string representation of the BalanceRecord
func (r *BalanceRecord) String() string {
	return fmt.Sprintf("BalanceRecord{%s %s, Bank: %s, Label: %s}",
		r.Amount.String(), r.CurrencyCode, r.BankCode, r.InstrumentLabel)
}

// UsageRow is one deposit instrument's inflow usage for the current month.
type UsageRow struct {
	InstrumentID   string          `json:"instrument_id" csv:"instrument_id"`
	Label          string          `json:"label" csv:"label"`
	BankCodeRaw    string          `json:"bank" csv:"bank"`
	UsedOut        decimal.Decimal `json:"used_out" csv:"used_out"`
	CurrentBalance decimal.Decimal `json:"current_balance" csv:"current_balance"`
}

// Movement is a single ledger entry on an instrument. Negative amounts are
// outflows and count toward the monthly usage.
type Movement struct {
	InstrumentID string          `json:"instrument_id"`
	BankCode     string          `json:"bank"`
	CurrencyCode string          `json:"currency"`
	Label        string          `json:"label"`
	Amount       decimal.Decimal `json:"amount"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// RateDirection distinguishes buy and sell conversion rates
type RateDirection string

const (
	RateBuy  RateDirection = "buy"
	RateSell RateDirection = "sell"
)

// IsValid checks if the direction is known
func (d RateDirection) IsValid() bool {
	return d == RateBuy || d == RateSell
}

// Rate is an observed conversion rate in reserve units per foreign unit.
type Rate struct {
	CurrencyCode string          `json:"currency"`
	Direction    RateDirection   `json:"direction"`
	Value        decimal.Decimal `json:"value"`
	ObservedAt   time.Time       `json:"observed_at"`
}

// CardStatus represents the monthly-limit state of a deposit instrument
type CardStatus string

const (
	CardOK         CardStatus = "OK"
	CardExtendable CardStatus = "EXTENDABLE"
	CardBlocked    CardStatus = "BLOCKED"
)

// String returns the string representation of CardStatus
func (s CardStatus) String() string {
	return string(s)
}

// Card is a deposit instrument assessed against its monthly inflow limit.
type Card struct {
	Bank         string          `json:"bank"`
	InstrumentID string          `json:"instrument_id"`
	MaskedID     string          `json:"masked_id"`
	Label        string          `json:"label,omitempty"`
	UsedOut      decimal.Decimal `json:"used_out"`
	Limit        decimal.Decimal `json:"limit"`
	Remaining    decimal.Decimal `json:"remaining"`
	Balance      decimal.Decimal `json:"balance"`
	DepositCap   decimal.Decimal `json:"deposit_cap"`
	Status       CardStatus      `json:"status"`
	IsBolsa      bool            `json:"is_bolsa"`
}

// NoMask is shown when an instrument id carries no digits.
const NoMask = "—"

// MaskInstrumentID keeps the last four digits of an instrument id.
func MaskInstrumentID(id string) string {
	var digits []rune
	for _, r := range id {
		if unicode.IsDigit(r) {
			digits = append(digits, r)
		}
	}
	if len(digits) == 0 {
		return NoMask
	}
	if len(digits) > 4 {
		digits = digits[len(digits)-4:]
	}
	return string(digits)
}

// NormalizeCurrency upper-cases and trims a currency code
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ParseDecimalFromString parses a decimal value from string with validation
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d, nil
}

// CoerceDecimal parses s and returns zero instead of failing. The second
// result reports whether s was usable.
func CoerceDecimal(s string) (decimal.Decimal, bool) {
	d, err := ParseDecimalFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ParseTimeWithFormats attempts to parse time from string using multiple common formats
func ParseTimeWithFormats(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("time string cannot be empty")
	}
	if loc == nil {
		loc = time.UTC
	}

	formats := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02",
		"02/01/2006 15:04",
		"02/01/2006",
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.ParseInLocation(format, s, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("unable to parse time '%s': %w", s, lastErr)
}

// MaxZero returns d, or zero when d is negative
func MaxZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
