// Copyright 2018-2025 CERN
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// In applying this license, CERN does not waive the privileges and immunities
// granted to it by virtue of its status as an Intergovernmental Organization
// or submit itself to any jurisdiction.

// Package signedurl provides interfaces and implementations for signing and
// verifying time-bounded URLs handed out for data-file downloads.
package signedurl

import (
	"time"
)

// Signer signs URLs.
type Signer interface {
	// Sign returns the url extended with a signature that expires after ttl.
	Sign(url, subject string, ttl time.Duration) (string, error)
}

// Verifier verifies signed URLs.
type Verifier interface {
	// Verify checks the signature of a signed URL and returns the subject it
	// was minted for.
	Verify(signedURL string) (string, error)
}

// Error is the error type returned by this package.
type Error struct {
	innerErr error
	message  string
}

// NewError creates a new Error with the provided inner error and message.
func NewError(innerErr error, message string) Error {
	return Error{innerErr: innerErr, message: message}
}

// ErrInvalidKey is returned when a signer is built without a usable secret.
var ErrInvalidKey = NewError(nil, "invalid key provided")

// VerificationError wraps all signature verification failures.
type VerificationError struct {
	err Error
}

// NewVerificationError creates a new VerificationError wrapping the inner error.
func NewVerificationError(innerErr error) VerificationError {
	return VerificationError{
		err: Error{
			innerErr: innerErr,
			message:  "signature verification failed",
		},
	}
}

// Error implements the error interface.
func (e VerificationError) Error() string {
	return e.err.Error()
}

// Unwrap returns the wrapped error.
func (e VerificationError) Unwrap() error {
	return e.err.Unwrap()
}

// Is matches any VerificationError regardless of the wrapped cause.
func (e VerificationError) Is(tgt error) bool {
	_, ok := tgt.(VerificationError)
	return ok
}

// Error implements the error interface.
func (e Error) Error() string {
	if e.innerErr != nil {
		return e.message + ": " + e.innerErr.Error()
	}
	return e.message
}

// Unwrap returns the wrapped error.
func (e Error) Unwrap() error {
	return e.innerErr
}
