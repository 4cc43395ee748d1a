package reporter

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"deposit-reconciler/internal/reconciler"
	"deposit-reconciler/pkg/errors"
	"deposit-reconciler/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with categorised errors, logging
// and a console fallback for structured formats
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
		).WithSuggestion("Check the report configuration values")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// GenerateReportSafely generates a report, falling back to the console
// format when a structured format fails
func (srg *SafeReportGenerator) GenerateReportSafely(result *reconciler.Result, writer io.Writer) error {
	srg.logger.WithFields(logger.Fields{
		"format": srg.config.Format,
		"output": getWriterDescription(writer),
	}).Debug("Starting report generation")

	if err := srg.validateInputs(result, writer); err != nil {
		srg.logger.WithError(err).Error("Report generation failed: input validation")
		return err
	}

	if err := srg.generateWithFallback(result, writer); err != nil {
		srg.logger.WithError(err).Error("Report generation failed")
		return err
	}

	srg.logger.Debug("Report generation completed")
	return nil
}

// WriteReportFile renders the report into path, replacing it only once the
// report is complete
func (srg *SafeReportGenerator) WriteReportFile(result *reconciler.Result, path string) error {
	if err := srg.validateInputs(result, io.Discard); err != nil {
		return err
	}
	return WriteFileAtomic(path, func(w io.Writer) error {
		if err := srg.GenerateReport(result, w); err != nil {
			return srg.wrapGenerationError(err)
		}
		return nil
	})
}

// validateInputs validates the inputs for report generation
func (srg *SafeReportGenerator) validateInputs(result *reconciler.Result, writer io.Writer) error {
	if result == nil {
		return errors.ValidationError(
			errors.CodeMissingField,
			"result",
			nil,
			nil,
		).WithSuggestion("Provide a reconciliation result")
	}

	if result.Summary == nil {
		return errors.ValidationError(
			errors.CodeMissingField,
			"summary",
			nil,
			nil,
		).WithSuggestion("Only balanced reconciliations produce a report")
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

// generateWithFallback renders the report into memory so a failed format
// never leaves partial output in writer, then falls back to the console
// format for structured formats
func (srg *SafeReportGenerator) generateWithFallback(result *reconciler.Result, writer io.Writer) error {
	var buf bytes.Buffer
	err := srg.GenerateReport(result, &buf)
	if err == nil {
		if _, werr := buf.WriteTo(writer); werr != nil {
			return srg.wrapGenerationError(werr)
		}
		return nil
	}

	if srg.config.Format == FormatConsole {
		return srg.wrapGenerationError(err)
	}

	srg.logger.WithError(err).Warn("Primary report generation failed, attempting fallback")

	fallbackConfig := *srg.config
	fallbackConfig.Format = FormatConsole
	fallbackGenerator, ferr := NewReportGenerator(&fallbackConfig)
	if ferr != nil {
		return srg.wrapGenerationError(err)
	}

	buf.Reset()
	fmt.Fprintf(&buf, "NOTE: Report generated in fallback format due to error with requested format\n")
	fmt.Fprintf(&buf, "Original error: %v\n\n", err)
	if ferr := fallbackGenerator.GenerateReport(result, &buf); ferr != nil {
		return errors.InternalError(
			errors.CodeUnexpectedError,
			"report_fallback",
			fmt.Errorf("both primary and fallback generation failed: primary=%v, fallback=%v", err, ferr),
		)
	}
	if _, werr := buf.WriteTo(writer); werr != nil {
		return srg.wrapGenerationError(werr)
	}

	srg.logger.WithField("fallback_format", FormatConsole).Info("Report generated using format fallback")
	return nil
}

// wrapGenerationError wraps generation errors with context
func (srg *SafeReportGenerator) wrapGenerationError(err error) error {
	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return reconcilerErr
	}

	return errors.InternalError(
		errors.CodeUnexpectedError,
		"report_generation",
		err,
	).WithSuggestion("Check the output destination and report format settings")
}

// WriteFileAtomic writes through a temporary file in the destination
// directory and renames it over path once write succeeds. A failed write
// leaves any existing file untouched.
func WriteFileAtomic(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return outputError(path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return outputError(path, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return outputError(path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return outputError(path, err)
	}
	return nil
}

func outputError(path string, err error) error {
	switch {
	case os.IsPermission(err):
		return errors.FileError(errors.CodeFilePermission, path, err).
			WithSuggestion("check that the output directory is writable")
	case os.IsNotExist(err):
		return errors.FileError(errors.CodeFileNotFound, path, err).
			WithSuggestion("create the output directory first")
	default:
		return errors.InternalError(errors.CodeUnexpectedError, "writing "+path, err).
			WithContext("file_path", path).
			WithSuggestion("check the output destination and free disk space")
	}
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
