// Copyright (C) 2025 vagent-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package errkind implements the agent's single enumerated error model:
// every failure carries a Kind plus contextual fields, instead of a
// proliferation of distinct error types.
package errkind

import (
	"errors"
	"fmt"
)

// Kind enumerates the taxonomy from the error handling design.
type Kind int

const (
	KindUnknown Kind = iota

	// Configuration
	KindConfigMissingEmail
	KindConfigInvalid

	// Protocol-local
	KindInvalidCipherString
	KindTooOldCipherStringType
	KindInvalidBase64
	KindInvalidMac
	KindDecrypt

	// Auth
	KindIncorrectPassword
	KindPinIncorrect
	KindPinExpired
	KindPinTooManyFailures
	KindPinBackendWeak
	KindRegistrationRequired
	KindIncorrectApiKey

	// Two-factor
	KindTwoFactorRequired
	KindInvalidTwoFactorProvider

	// Transport
	KindRequestFailed
	KindRequestUnauthorized
	KindNetwork

	// Storage
	KindLoadDb
	KindSaveDb
	KindLoadConfig
	KindSaveConfig
	KindLoadWrappedMaster
	KindSaveWrappedMaster
	KindLoadDeviceId

	// Crypto
	KindPbkdf2ZeroIterations
	KindPbkdf2
	KindArgon2
	KindHkdfExpand
	KindRsa
	KindHmac

	// User interaction
	KindPinentryCancelled
	KindPinentryError
	KindReadStdin
	KindEditorFailed

	// Invariant violation (reserved for panics, not returned as errors)
	KindLockedBytesExhausted
)

var kindNames = map[Kind]string{
	KindUnknown:                   "unknown",
	KindConfigMissingEmail:        "config_missing_email",
	KindConfigInvalid:             "config_invalid",
	KindInvalidCipherString:       "invalid_cipherstring",
	KindTooOldCipherStringType:    "too_old_cipherstring_type",
	KindInvalidBase64:             "invalid_base64",
	KindInvalidMac:                "invalid_mac",
	KindDecrypt:                   "decrypt_failed",
	KindIncorrectPassword:         "incorrect_password",
	KindPinIncorrect:              "pin_incorrect",
	KindPinExpired:                "pin_expired",
	KindPinTooManyFailures:        "pin_too_many_failures",
	KindPinBackendWeak:            "pin_backend_weak",
	KindRegistrationRequired:      "registration_required",
	KindIncorrectApiKey:           "incorrect_api_key",
	KindTwoFactorRequired:         "two_factor_required",
	KindInvalidTwoFactorProvider:  "invalid_two_factor_provider",
	KindRequestFailed:             "request_failed",
	KindRequestUnauthorized:       "request_unauthorized",
	KindNetwork:                   "network",
	KindLoadDb:                    "load_db",
	KindSaveDb:                    "save_db",
	KindLoadConfig:                "load_config",
	KindSaveConfig:                "save_config",
	KindLoadWrappedMaster:         "load_wrapped_master",
	KindSaveWrappedMaster:         "save_wrapped_master",
	KindLoadDeviceId:              "load_device_id",
	KindPbkdf2ZeroIterations:      "pbkdf2_zero_iterations",
	KindPbkdf2:                    "pbkdf2",
	KindArgon2:                    "argon2",
	KindHkdfExpand:                "hkdf_expand",
	KindRsa:                       "rsa",
	KindHmac:                      "hmac",
	KindPinentryCancelled:         "pinentry_cancelled",
	KindPinentryError:             "pinentry_error",
	KindReadStdin:                 "read_stdin",
	KindEditorFailed:              "editor_failed",
	KindLockedBytesExhausted:      "locked_bytes_exhausted",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Error is the single contextual error type used throughout the agent.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]any
	Wrapped error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// New creates an Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an underlying error with a Kind and message.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Wrapped: err}
}

// WithField attaches a contextual field and returns the same error for chaining.
func (e *Error) WithField(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

// WithAttempt annotates the message with the "(attempt n/total)" suffix the
// dispatcher's retry loops use (spec section 4.8 / section 7).
func (e *Error) WithAttempt(attempt, total int) *Error {
	e.Message = fmt.Sprintf("%s (attempt %d/%d)", e.Message, attempt, total)
	return e.WithField("attempt", attempt).WithField("attempts_total", total)
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Wrapped
	}
	return false
}

// KindOf extracts the Kind from err, or KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
