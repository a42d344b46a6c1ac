package model

import (
	"errors"
	"fmt"
	"strings"
)

// ClassificationGap reports a live attribute that no list classifies.
type ClassificationGap struct {
	Entity    string `json:"entity"`
	Attribute string `json:"attribute"`
}

func (e *ClassificationGap) Error() string {
	return fmt.Sprintf("%s.%s is not classified: add it to the export list or the blocklist", e.Entity, e.Attribute)
}

// StaleClassification reports a list entry that refers to an entity or
// attribute missing from the live schema. Attribute is empty when the whole
// entity is gone.
type StaleClassification struct {
	List      string `json:"list"`
	Entity    string `json:"entity"`
	Attribute string `json:"attribute,omitempty"`
}

func (e *StaleClassification) Error() string {
	if e.Attribute == "" {
		return fmt.Sprintf("%s names entity %s, which does not exist", e.List, e.Entity)
	}
	return fmt.Sprintf("%s names %s.%s, which does not exist", e.List, e.Entity, e.Attribute)
}

// ClassificationConflict reports an attribute whose list entries contradict
// each other.
type ClassificationConflict struct {
	Entity    string `json:"entity"`
	Attribute string `json:"attribute"`
	Reason    string `json:"reason"`
}

func (e *ClassificationConflict) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Entity, e.Attribute, e.Reason)
}

// FieldError represents a single problem with a named setting.
type FieldError struct {
	Field   string
	Message string
}

// ConfigurationError collects every governance and settings problem found at
// startup. It is fatal: nothing may be exported while one is outstanding.
type ConfigurationError struct {
	Gaps      []*ClassificationGap
	Stale     []*StaleClassification
	Conflicts []*ClassificationConflict
	Settings  []FieldError
}

// Error formats the problems as a semicolon-separated list.
func (e *ConfigurationError) Error() string {
	var parts []string
	for _, fe := range e.Settings {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	for _, err := range e.Unwrap() {
		parts = append(parts, err.Error())
	}
	return "configuration error: " + strings.Join(parts, "; ")
}

// HasErrors reports whether any problem was recorded.
func (e *ConfigurationError) HasErrors() bool {
	return len(e.Gaps)+len(e.Stale)+len(e.Conflicts)+len(e.Settings) > 0
}

// Unwrap exposes the governance problems to errors.As.
func (e *ConfigurationError) Unwrap() []error {
	var errs []error
	for _, g := range e.Gaps {
		errs = append(errs, g)
	}
	for _, s := range e.Stale {
		errs = append(errs, s)
	}
	for _, c := range e.Conflicts {
		errs = append(errs, c)
	}
	return errs
}

// DispatchFailure is returned when a batch of events could not be handed to
// the sink or the job queue.
type DispatchFailure struct {
	Events    int
	Permanent bool
	Cause     error
}

func (e *DispatchFailure) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("dispatch of %d events failed (%s): %v", e.Events, kind, e.Cause)
}

func (e *DispatchFailure) Unwrap() error {
	return e.Cause
}

// IsPermanent reports whether err carries a DispatchFailure that retrying
// cannot fix.
func IsPermanent(err error) bool {
	var df *DispatchFailure
	if errors.As(err, &df) {
		return df.Permanent
	}
	return false
}
