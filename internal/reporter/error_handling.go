package reporter

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang-liquidity-planner/internal/liquidity"
	"golang-liquidity-planner/pkg/errors"
	"golang-liquidity-planner/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with enhanced error handling
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator creates a new safe report generator with error handling
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"report_config",
			config,
			err,
		).WithSuggestion("Use one of: console, json, yaml, csv")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// GenerateReportSafely renders the report into a buffer first so a failing
// format never leaves partial output, falling back to console when a
// structured format fails.
func (srg *SafeReportGenerator) GenerateReportSafely(resp *liquidity.Response, writer io.Writer) error {
	srg.logger.WithFields(logger.Fields{
		"format": srg.config.Format,
		"output": getWriterDescription(writer),
	}).Debug("Starting report generation")

	if err := srg.validateInputs(resp, writer); err != nil {
		srg.logger.WithError(err).Error("Report generation failed: input validation")
		return err
	}

	var buf bytes.Buffer
	err := srg.GenerateReport(resp, &buf)
	if err != nil {
		srg.logger.WithError(err).Warn("Primary report generation failed, attempting fallback")
		if srg.config.Format == FormatConsole {
			return srg.wrapGenerationError(err)
		}
		buf.Reset()
		if err := srg.generateWithFormatFallback(resp, &buf, err); err != nil {
			return err
		}
	}

	if _, err := writer.Write(buf.Bytes()); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "report_write", err).
			WithSuggestion("Check the output destination")
	}

	srg.logger.Debug("Report generation completed successfully")
	return nil
}

// WriteReportFile writes the report to path, creating parent directories.
// When path cannot be written the report goes to a backup file in the temp dir.
func (srg *SafeReportGenerator) WriteReportFile(resp *liquidity.Response, path string) (string, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", errors.FileError(errors.CodeDirectoryError, dir, err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		if !isFileError(err) {
			return "", errors.FileError(errors.CodeFilePermission, path, err)
		}
		return srg.writeBackup(resp, path, err)
	}
	defer file.Close()

	if err := srg.GenerateReportSafely(resp, file); err != nil {
		return "", err
	}
	return path, nil
}

func (srg *SafeReportGenerator) writeBackup(resp *liquidity.Response, originalPath string, originalErr error) (string, error) {
	backupPath := generateBackupPath(originalPath)
	srg.logger.WithFields(logger.Fields{
		"original_file": originalPath,
		"backup_file":   backupPath,
	}).Warn("Attempting output fallback")

	backup, err := os.Create(backupPath)
	if err != nil {
		return "", errors.FileError(errors.CodeFilePermission, originalPath, originalErr)
	}
	defer backup.Close()

	if err := srg.GenerateReportSafely(resp, backup); err != nil {
		return "", err
	}

	fmt.Fprintf(os.Stderr, "Warning: Could not write to %s, report saved to %s\n", originalPath, backupPath)
	return backupPath, nil
}

func (srg *SafeReportGenerator) validateInputs(resp *liquidity.Response, writer io.Writer) error {
	if resp == nil || resp.Result == nil {
		return errors.ValidationError(
			errors.CodeMissingField,
			"result",
			nil,
			nil,
		).WithSuggestion("Provide a planning result")
	}

	if writer == nil {
		return errors.ValidationError(
			errors.CodeMissingField,
			"writer",
			nil,
			nil,
		).WithSuggestion("Provide a valid output writer")
	}

	return nil
}

func (srg *SafeReportGenerator) generateWithFormatFallback(resp *liquidity.Response, writer io.Writer, originalErr error) error {
	fallbackConfig := *srg.config
	fallbackConfig.Format = FormatConsole

	srg.logger.WithField("fallback_format", FormatConsole).Info("Attempting format fallback")

	fallbackGenerator, err := NewReportGenerator(&fallbackConfig)
	if err != nil {
		return srg.wrapGenerationError(originalErr)
	}

	fmt.Fprintf(writer, "NOTE: Report generated in fallback format due to error with requested format\n")
	fmt.Fprintf(writer, "Original error: %v\n\n", originalErr)

	if err := fallbackGenerator.GenerateReport(resp, writer); err != nil {
		return errors.InternalError(
			errors.CodeUnexpectedError,
			"report_fallback",
			fmt.Errorf("both primary and fallback generation failed: primary=%v, fallback=%v", originalErr, err),
		)
	}
	return nil
}

func (srg *SafeReportGenerator) wrapGenerationError(err error) error {
	if plannerErr, ok := errors.AsPlannerError(err); ok {
		return plannerErr
	}

	return errors.InternalError(
		errors.CodeUnexpectedError,
		"report_generation",
		err,
	).WithSuggestion("Check the output destination and report format settings")
}

func isFileError(err error) bool {
	return os.IsPermission(err) || os.IsNotExist(err) || isSpaceError(err)
}

func isSpaceError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no space left") ||
		strings.Contains(msg, "disk full") ||
		strings.Contains(msg, "device full")
}

// generateBackupPath places the backup in the temp dir since the original
// location was not writable
func generateBackupPath(originalPath string) string {
	base := filepath.Base(originalPath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]

	return filepath.Join(os.TempDir(), fmt.Sprintf("%s_backup%s", name, ext))
}

func getWriterDescription(writer io.Writer) string {
	switch w := writer.(type) {
	case *os.File:
		if w.Name() != "" {
			return fmt.Sprintf("file:%s", w.Name())
		}
		return "file:unnamed"
	default:
		return fmt.Sprintf("writer:%T", writer)
	}
}
