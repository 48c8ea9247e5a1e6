// Package faults classifies the error kinds named in the error handling
// design into the catalog state the worker should persist, and provides a
// Wrap helper that keeps stage/operation context attached to an error
// without losing its classification marker.
package faults

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrExternalTool marks a failure in the encoder or probe subprocess
	// (non-zero exit, killed, or unreadable output).
	ErrExternalTool = errors.New("external tool error")

	// ErrAcceptanceRejected marks a completed encode that failed the
	// acceptance criteria (wrong codec, not smaller, duration mismatch).
	ErrAcceptanceRejected = errors.New("acceptance rejected")

	// ErrSourceMutated marks the source-changed-mid-flight race: the
	// content hash at verify time no longer matches pre_hash.
	ErrSourceMutated = errors.New("source mutated mid-flight")

	// ErrTransientIO marks a transient filesystem failure (read failure,
	// full scratch disk).
	ErrTransientIO = errors.New("transient io error")

	// ErrVanished marks a file that disappeared from disk during
	// processing.
	ErrVanished = errors.New("file vanished")
)

// Wrap builds an error that includes stage/operation context while
// tagging it with marker for later classification by Disposition.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransientIO
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Disposition is the catalog transition the worker applies after a failed
// job, per the error handling design.
type Disposition int

const (
	// DispositionFailed records last_error and transitions to FAILED; not
	// retried automatically.
	DispositionFailed Disposition = iota
	// DispositionPending transitions back to PENDING with no error
	// recorded (an expected race, not a failure).
	DispositionPending
	// DispositionGone transitions to GONE (the file vanished).
	DispositionGone
)

// Classify maps an error produced during encode/verify into the
// disposition the worker should apply.
func Classify(err error) Disposition {
	switch {
	case errors.Is(err, ErrSourceMutated):
		return DispositionPending
	case errors.Is(err, ErrVanished):
		return DispositionGone
	default:
		return DispositionFailed
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "worker failure"
	}
	return strings.Join(parts, ": ")
}
