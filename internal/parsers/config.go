package parsers

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang-liquidity-planner/internal/bankcode"
)

// SourceConfig holds configuration for reading one CSV source
type SourceConfig struct {
	HasHeader bool `json:"has_header"`
	Delimiter rune `json:"delimiter"`
	// ColumnAliases maps a standard column name to the header used in the file.
	ColumnAliases map[string]string `json:"column_aliases,omitempty"`
	// DecodeLegacy reads non-UTF-8 files as Windows-1252 instead of failing.
	DecodeLegacy bool `json:"decode_legacy"`
	// Location interprets timestamps that carry no zone.
	Location *time.Location `json:"-"`
}

// DefaultSourceConfig returns a configuration with sensible defaults
func DefaultSourceConfig() *SourceConfig {
	return &SourceConfig{
		HasHeader:     true,
		Delimiter:     ',',
		ColumnAliases: make(map[string]string),
		DecodeLegacy:  true,
		Location:      time.UTC,
	}
}

// Validate checks if the source configuration is valid
func (sc *SourceConfig) Validate() error {
	switch {
	case sc.Delimiter == 0:
		return fmt.Errorf("delimiter cannot be empty")
	case sc.Delimiter == '"' || sc.Delimiter == '\r' || sc.Delimiter == '\n':
		return fmt.Errorf("invalid delimiter %q", sc.Delimiter)
	case sc.Delimiter == unicode.ReplacementChar:
		return fmt.Errorf("invalid delimiter %q", sc.Delimiter)
	}
	for standard, header := range sc.ColumnAliases {
		if strings.TrimSpace(header) == "" {
			return fmt.Errorf("alias for column '%s' cannot be empty", standard)
		}
	}
	return nil
}

// GetColumnName returns the configured header for a standard column
func (sc *SourceConfig) GetColumnName(standardName string) string {
	if alias, exists := sc.ColumnAliases[standardName]; exists {
		return alias
	}
	return standardName
}

func (sc *SourceConfig) location() *time.Location {
	if sc.Location == nil {
		return time.UTC
	}
	return sc.Location
}

// column is one field a parser reads
type column struct {
	name     string
	required bool
}

// knownAliases are header spellings seen in exports, keyed by standard name.
// Matching ignores case, accents, spaces and underscores.
var knownAliases = map[string][]string{
	"currency":        {"moneda", "currency_code", "divisa"},
	"bank":            {"banco", "bank_code", "entidad"},
	"owner":           {"titular", "owner_name", "nombre"},
	"label":           {"etiqueta", "descripcion", "instrument_label", "concepto"},
	"amount":          {"monto", "importe", "saldo"},
	"unit_value":      {"valor_unitario", "unit_value_in_reserve", "factor"},
	"instrument_id":   {"tarjeta", "card", "cuenta", "numero"},
	"used_out":        {"usado", "used", "salidas"},
	"current_balance": {"saldo_actual", "balance"},
	"occurred_at":     {"fecha", "date", "timestamp"},
	"direction":       {"tipo", "side"},
	"value":           {"tasa", "rate", "valor"},
	"observed_at":     {"fecha", "date", "timestamp"},
}

func headerKey(h string) string {
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(bankcode.Fold(strings.TrimSpace(h)))
}

// resolveColumns finds each layout column in headers: configured alias first,
// then the standard name, then the known spellings.
func (sc *SourceConfig) resolveColumns(headers []string, layout []column) map[string]int {
	index := make(map[string]int, len(headers))
	for i, h := range headers {
		key := headerKey(h)
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}

	resolved := make(map[string]int, len(layout))
	for _, c := range layout {
		candidates := append([]string{sc.GetColumnName(c.name), c.name}, knownAliases[c.name]...)
		for _, candidate := range candidates {
			if i, ok := index[headerKey(candidate)]; ok {
				resolved[c.name] = i
				break
			}
		}
	}
	return resolved
}
