/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package resolver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/friendsincode/guildtune/internal/models"
)

var (
	ErrResolutionExhausted = errors.New("resolution exhausted")
	ErrTranslationFailed   = errors.New("cross-service translation failed")
)

// ExhaustedError reports that every backend failed, in backend order.
type ExhaustedError struct {
	Track    models.Track
	Attempts []models.BackendAttempt
}

func (e *ExhaustedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s for %q", ErrResolutionExhausted, e.Track.Label())
	for i, a := range e.Attempts {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s %s: %s", a.Backend, a.Outcome, a.Reason)
	}
	return b.String()
}

func (e *ExhaustedError) Unwrap() error {
	return ErrResolutionExhausted
}

// Reasons returns one entry per attempted backend.
func (e *ExhaustedError) Reasons() []string {
	out := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		out[i] = a.Backend + ": " + a.Reason
	}
	return out
}

// TranslationError reports a failed lookup of a native URI.
type TranslationError struct {
	Track models.Track
	Err   error
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("%s for %q: %v", ErrTranslationFailed, e.Track.Label(), e.Err)
}

func (e *TranslationError) Unwrap() []error {
	return []error{ErrTranslationFailed, e.Err}
}
