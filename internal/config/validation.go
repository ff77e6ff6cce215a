package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Has reports whether any error concerns field.
func (e ValidationErrors) Has(field string) bool {
	for _, err := range e {
		if err.Field == field {
			return true
		}
	}
	return false
}

// ValidateConfig checks every section and returns all problems at once.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateCapture(&c.Capture)...)
	errs = append(errs, validateLogging(&c.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateCapture(c *CaptureConfig) ValidationErrors {
	var errs ValidationErrors

	if strings.TrimSpace(c.Dir) == "" {
		errs = append(errs, ValidationError{
			Field:   "capture.dir",
			Message: "output directory is required",
		})
	}

	for i, dev := range c.Devices {
		if strings.TrimSpace(dev) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("capture.devices[%d]", i),
				Message: "device path cannot be empty",
			})
		}
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr", "file", "both":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}

	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}

	return errs
}
