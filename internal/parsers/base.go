// Package parsers reads the CSV exports that feed a planning run.
//
// Real exports differ in header spelling, delimiters and encodings, so every
// parser resolves columns through an alias table and tolerates bad values:
// a malformed amount becomes zero and is reported as a warning, while rows
// missing an identifying field are skipped and reported as errors. Nothing
// short of an unreadable file or a missing required column fails a parse.
//
// Parser Types:
//   - BalanceParser: latest balance per instrument
//   - UsageParser: pre-aggregated monthly usage per deposit card
//   - MovementParser: ledger movements, loaded whole or in batches
//   - RateParser: observed conversion rates
//
// Example usage:
//
//	parser, err := NewBalanceParser(DefaultSourceConfig())
//	balances, stats, err := parser.ParseBalances(ctx, "balances.csv")
//	if stats.HasWarnings() {
//		log.Warn(stats.String())
//	}
package parsers

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang-liquidity-planner/internal/models"
	"golang-liquidity-planner/pkg/errors"
	"golang-liquidity-planner/pkg/logger"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// ParseError represents a problem with one field or row of a CSV source
type ParseError struct {
	Line    int
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("line %d (%s='%s'): %s: %v", e.Line, e.Field, e.Value, e.Message, e.Err)
	}
	return fmt.Sprintf("line %d (%s='%s'): %s", e.Line, e.Field, e.Value, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	Source        string
	TotalLines    int
	RecordsParsed int
	RecordsValid  int
	ErrorCount    int
	Errors        []*ParseError
	Warnings      []*ParseError
	LegacyDecoded bool
}

// NewParseStats creates a new ParseStats instance
func NewParseStats(source string) *ParseStats {
	return &ParseStats{
		Source:   source,
		Errors:   make([]*ParseError, 0),
		Warnings: make([]*ParseError, 0),
	}
}

// AddError records a skipped row
func (ps *ParseStats) AddError(err *ParseError) {
	ps.Errors = append(ps.Errors, err)
	ps.ErrorCount++
}

// AddWarning records a coerced value
func (ps *ParseStats) AddWarning(w *ParseError) {
	ps.Warnings = append(ps.Warnings, w)
}

// HasErrors returns true if any row was skipped
func (ps *ParseStats) HasErrors() bool {
	return ps.ErrorCount > 0
}

// HasWarnings returns true if any value was coerced
func (ps *ParseStats) HasWarnings() bool {
	return len(ps.Warnings) > 0
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("%s: %d lines, %d records (%d valid), %d errors, %d warnings",
		ps.Source, ps.TotalLines, ps.RecordsParsed, ps.RecordsValid, ps.ErrorCount, len(ps.Warnings))
}

// GetSampleErrors returns up to maxSamples error messages for logging
func (ps *ParseStats) GetSampleErrors(maxSamples int) []string {
	return sample(ps.Errors, maxSamples)
}

// GetSampleWarnings returns up to maxSamples warning messages for logging
func (ps *ParseStats) GetSampleWarnings(maxSamples int) []string {
	return sample(ps.Warnings, maxSamples)
}

func sample(list []*ParseError, maxSamples int) []string {
	if len(list) == 0 {
		return nil
	}
	limit := len(list)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}
	samples := make([]string, 0, limit)
	for _, e := range list[:limit] {
		samples = append(samples, e.Error())
	}
	return samples
}

// BaseParser provides the CSV plumbing shared by every source parser
type BaseParser struct {
	config *SourceConfig
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser with the given configuration
func NewBaseParser(config *SourceConfig, component string) (*BaseParser, error) {
	if config == nil {
		config = DefaultSourceConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, component, string(config.Delimiter), err).
			WithSuggestion("Use a single printable delimiter such as ',' or ';'")
	}

	log := logger.WithComponent(component)
	log.WithFields(logger.Fields{
		"has_header":    config.HasHeader,
		"delimiter":     string(config.Delimiter),
		"decode_legacy": config.DecodeLegacy,
	}).Debug("Created parser")

	return &BaseParser{config: config, logger: log}, nil
}

// rowSource is an open CSV stream with its resolved header
type rowSource struct {
	name    string
	closer  io.Closer
	reader  *csv.Reader
	columns map[string]int
	headers []string
	line    int
}

func (rs *rowSource) Close() error {
	if rs.closer == nil {
		return nil
	}
	return rs.closer.Close()
}

// openFile opens path, validating UTF-8 and falling back to Windows-1252
// decoding when configured.
func (bp *BaseParser) openFile(path string, stats *ParseStats) (io.ReadCloser, io.Reader, error) {
	bp.logger.WithField("file_path", path).Debug("Opening CSV file")

	file, err := os.Open(path)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", path).Error("Failed to open CSV file")
		switch {
		case os.IsNotExist(err):
			return nil, nil, errors.FileError(errors.CodeFileNotFound, path, err)
		case os.IsPermission(err):
			return nil, nil, errors.FileError(errors.CodeFilePermission, path, err)
		default:
			return nil, nil, errors.FileError(errors.CodeDirectoryError, path, err)
		}
	}

	valid, line, err := validUTF8(file)
	if err != nil {
		file.Close()
		return nil, nil, errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, nil, errors.FileError(errors.CodeFileCorrupted, path, err)
	}

	if valid {
		return file, file, nil
	}
	if !bp.config.DecodeLegacy {
		file.Close()
		return nil, nil, errors.ParseError(errors.CodeEncodingError, path, line, "encoding", "",
			fmt.Errorf("invalid UTF-8 encoding detected")).
			WithSuggestion("Save the file in UTF-8 encoding or enable legacy decoding")
	}

	bp.logger.WithFields(logger.Fields{"file_path": path, "line": line}).Warn("File is not UTF-8, decoding as Windows-1252")
	stats.LegacyDecoded = true
	return file, transform.NewReader(file, charmap.Windows1252.NewDecoder()), nil
}

// validUTF8 checks the first 100 lines of r
func validUTF8(r io.Reader) (bool, int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() && line < 100 {
		line++
		if !utf8.Valid(scanner.Bytes()) {
			return false, line, nil
		}
	}
	return true, 0, scanner.Err()
}

// open prepares a row source from a file path
func (bp *BaseParser) open(path string, layout []column, stats *ParseStats) (*rowSource, error) {
	closer, r, err := bp.openFile(path, stats)
	if err != nil {
		return nil, err
	}
	src, err := bp.newRowSource(path, r, layout)
	if err != nil {
		closer.Close()
		return nil, err
	}
	src.closer = closer
	return src, nil
}

// newRowSource wraps r in a configured csv.Reader and resolves the header
func (bp *BaseParser) newRowSource(name string, r io.Reader, layout []column) (*rowSource, error) {
	reader := csv.NewReader(r)
	reader.Comma = bp.config.Delimiter
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	src := &rowSource{name: name, reader: reader}
	if err := bp.readHeader(src, layout); err != nil {
		return nil, err
	}
	return src, nil
}

// readHeader maps each layout column to its index, honoring aliases
func (bp *BaseParser) readHeader(src *rowSource, layout []column) error {
	if !bp.config.HasHeader {
		src.columns = make(map[string]int, len(layout))
		for i, c := range layout {
			src.headers = append(src.headers, c.name)
			src.columns[c.name] = i
		}
		return nil
	}

	headers, err := src.reader.Read()
	if err != nil {
		if err == io.EOF {
			return errors.ValidationError(errors.CodeMissingField, "file_content", "empty", nil).
				WithContext("file", src.name).
				WithSuggestion("Ensure the file contains header and data rows")
		}
		return errors.ParseError(errors.CodeInvalidFormat, src.name, 1, "headers", "", err).
			WithSuggestion("Check the file format and ensure it's a valid CSV")
	}
	src.line++

	for i, h := range headers {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		headers[i] = h
	}
	src.headers = headers
	src.columns = bp.config.resolveColumns(headers, layout)

	var missing []string
	for _, c := range layout {
		if _, ok := src.columns[c.name]; c.required && !ok {
			missing = append(missing, c.name)
		}
	}
	if len(missing) > 0 {
		bp.logger.WithFields(logger.Fields{
			"file":              src.name,
			"missing_headers":   missing,
			"available_headers": headers,
		}).Error("Required headers are missing")

		return errors.ParseError(errors.CodeMissingColumn, src.name, src.line, "headers", strings.Join(missing, ", "), nil).
			WithSuggestion(fmt.Sprintf("Ensure the CSV file contains these columns (or an alias): %s", strings.Join(missing, ", ")))
	}

	bp.logger.WithFields(logger.Fields{"file": src.name, "headers": headers}).Debug("Resolved headers")
	return nil
}

// each calls fn for every non-empty row until EOF or cancellation.
// Unreadable rows are recorded in stats and skipped.
func (bp *BaseParser) each(ctx context.Context, src *rowSource, stats *ParseStats, fn func(*row)) error {
	for {
		select {
		case <-ctx.Done():
			bp.logger.WithField("file", src.name).Warn("Parsing was cancelled")
			return errors.InternalError(errors.CodeUnexpectedError, "csv_parsing", ctx.Err())
		default:
		}

		record, err := src.reader.Read()
		if err == io.EOF {
			break
		}
		src.line++
		if err != nil {
			bp.logger.WithError(err).WithField("line_number", src.line).Warn("Failed to read CSV record")
			stats.AddError(&ParseError{Line: src.line, Field: "record", Message: "unreadable row", Err: err})
			continue
		}
		if isEmptyRecord(record) {
			continue
		}

		stats.RecordsParsed++
		fn(&row{src: src, record: record, stats: stats, line: src.line})
	}

	stats.TotalLines = src.line
	return nil
}

func (bp *BaseParser) logSummary(stats *ParseStats) {
	bp.logger.WithFields(logger.Fields{
		"file":           stats.Source,
		"total_lines":    stats.TotalLines,
		"records_parsed": stats.RecordsParsed,
		"records_valid":  stats.RecordsValid,
		"error_count":    stats.ErrorCount,
		"warning_count":  len(stats.Warnings),
	}).Info("Parsing completed")

	if stats.HasErrors() {
		bp.logger.WithField("sample_errors", stats.GetSampleErrors(3)).Warn("Rows skipped during parsing")
	}
	if stats.HasWarnings() {
		bp.logger.WithField("sample_warnings", stats.GetSampleWarnings(3)).Warn("Values coerced during parsing")
	}
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// row is one CSV record with typed accessors
type row struct {
	src    *rowSource
	record []string
	stats  *ParseStats
	line   int
}

// text returns the trimmed value of a column, or "" when absent
func (r *row) text(name string) string {
	idx, ok := r.src.columns[name]
	if !ok || idx >= len(r.record) {
		return ""
	}
	return strings.TrimSpace(r.record[idx])
}

// has reports whether the column exists in this source
func (r *row) has(name string) bool {
	_, ok := r.src.columns[name]
	return ok
}

// amount parses a decimal column. Blank or malformed values become fallback
// and, when the column is present, are recorded as warnings.
func (r *row) amount(name string, fallback decimal.Decimal) decimal.Decimal {
	raw := r.text(name)
	if raw == "" {
		return fallback
	}
	d, ok := models.CoerceDecimal(raw)
	if !ok {
		r.stats.AddWarning(&ParseError{
			Line:    r.line,
			Field:   name,
			Value:   raw,
			Message: fmt.Sprintf("not a number, using %s", fallback),
		})
		return fallback
	}
	return d
}

// fail records the row as skipped
func (r *row) fail(field, value, message string, err error) {
	r.stats.AddError(&ParseError{Line: r.line, Field: field, Value: value, Message: message, Err: err})
}
