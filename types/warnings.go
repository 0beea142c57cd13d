package types

import (
	"fmt"
	"time"
)

// WarningLevel represents the severity of a warning
type WarningLevel string

const (
	WarningLevelInfo    WarningLevel = "info"
	WarningLevelWarning WarningLevel = "warning"
)

// Warning codes recorded by the best-effort loader
const (
	WarnEncryptedRaw   = "ENCRYPTED_RAW"
	WarnXRefRebuilt    = "XREF_REBUILT"
	WarnMissingObject  = "MISSING_OBJECT"
	WarnStreamRecovery = "STREAM_LENGTH_RECOVERED"
)

// Warning represents a non-fatal issue encountered while loading or copying
type Warning struct {
	Level     WarningLevel
	Code      string
	Message   string
	Timestamp time.Time
}

// Error implements the error interface so warnings can be used as errors if needed
func (w *Warning) Error() string {
	if w.Code != "" {
		return fmt.Sprintf("[%s] %s: %s", w.Level, w.Code, w.Message)
	}
	return fmt.Sprintf("[%s] %s", w.Level, w.Message)
}

// NewWarningf creates a new warning with a code and formatted message
func NewWarningf(level WarningLevel, code, format string, args ...interface{}) *Warning {
	return &Warning{
		Level:     level,
		Code:      code,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now(),
	}
}

// WarningCollector collects warnings during PDF processing
type WarningCollector struct {
	warnings []*Warning
}

// Add adds a warning to the collector
func (wc *WarningCollector) Add(warning *Warning) {
	if warning != nil {
		wc.warnings = append(wc.warnings, warning)
	}
}

// AddWarningf adds a warning with a code and formatted message
func (wc *WarningCollector) AddWarningf(level WarningLevel, code, format string, args ...interface{}) {
	wc.Add(NewWarningf(level, code, format, args...))
}

// Warnings returns all collected warnings
func (wc *WarningCollector) Warnings() []*Warning {
	return wc.warnings
}

// Count returns the number of warnings collected
func (wc *WarningCollector) Count() int {
	return len(wc.warnings)
}

// HasCode reports whether any warning with the given code was collected
func (wc *WarningCollector) HasCode(code string) bool {
	for _, w := range wc.warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

// Clear clears all warnings
func (wc *WarningCollector) Clear() {
	wc.warnings = nil
}
