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

// Package errtypes contains definitions for common errors.
// It would have been nice to call this package errors, err or error
// but errors clashes with github.com/pkg/errors, err is used for any error
// variable and error is a reserved word :)
package errtypes

// NotFound is the error to use when a resource is not found.
type NotFound string

func (e NotFound) Error() string { return "error: not found: " + string(e) }

// IsNotFound implements the IsNotFound interface.
func (e NotFound) IsNotFound() {}

// InvalidCredentials is the error to use when receiving invalid credentials.
type InvalidCredentials string

func (e InvalidCredentials) Error() string { return "error: invalid credentials: " + string(e) }

// IsInvalidCredentials implements the IsInvalidCredentials interface.
func (e InvalidCredentials) IsInvalidCredentials() {}

// PermissionDenied is the error to use when a principal is known but lacks access.
type PermissionDenied string

func (e PermissionDenied) Error() string { return "error: permission denied: " + string(e) }

// IsPermissionDenied implements the IsPermissionDenied interface.
func (e PermissionDenied) IsPermissionDenied() {}

// BadRequest is the error to use when the request cannot be parsed or carries
// invalid parameters.
type BadRequest string

func (e BadRequest) Error() string { return "error: bad request: " + string(e) }

// IsBadRequest implements the IsBadRequest interface.
func (e BadRequest) IsBadRequest() {}

// NotSupported is the error to use when an action is not supported.
type NotSupported string

func (e NotSupported) Error() string { return "error: not supported: " + string(e) }

// IsNotSupported implements the IsNotSupported interface.
func (e NotSupported) IsNotSupported() {}

// CorruptLog is the error to use when a transaction log cannot be read at all.
type CorruptLog string

func (e CorruptLog) Error() string { return "error: corrupt log: " + string(e) }

// IsCorruptLog implements the IsCorruptLog interface.
func (e CorruptLog) IsCorruptLog() {}

// IncompleteLog is the error to use when a transaction log replay finished
// without yielding a protocol or metadata action.
type IncompleteLog string

func (e IncompleteLog) Error() string { return "error: incomplete log: " + string(e) }

// IsIncompleteLog implements the IsIncompleteLog interface.
func (e IncompleteLog) IsIncompleteLog() {}

// TemporarilyUnavailable is the error to use when a backing store fails transiently.
type TemporarilyUnavailable string

func (e TemporarilyUnavailable) Error() string {
	return "error: temporarily unavailable: " + string(e)
}

// IsTemporarilyUnavailable implements the IsTemporarilyUnavailable interface.
func (e TemporarilyUnavailable) IsTemporarilyUnavailable() {}

// IsNotFound is the interface to implement
// to specify that a resource is not found.
type IsNotFound interface {
	IsNotFound()
}

// IsInvalidCredentials is the interface to implement
// to specify that credentials were wrong.
type IsInvalidCredentials interface {
	IsInvalidCredentials()
}

// IsPermissionDenied is the interface to implement
// to specify that access to a resource is denied.
type IsPermissionDenied interface {
	IsPermissionDenied()
}

// IsBadRequest is the interface to implement
// to specify that a request is malformed.
type IsBadRequest interface {
	IsBadRequest()
}

// IsNotSupported is the interface to implement
// to specify that an action is not supported.
type IsNotSupported interface {
	IsNotSupported()
}

// IsCorruptLog is the interface to implement
// to specify that a transaction log is unreadable.
type IsCorruptLog interface {
	IsCorruptLog()
}

// IsIncompleteLog is the interface to implement
// to specify that a transaction log misses structural actions.
type IsIncompleteLog interface {
	IsIncompleteLog()
}

// IsTemporarilyUnavailable is the interface to implement
// to specify that a dependency failed transiently.
type IsTemporarilyUnavailable interface {
	IsTemporarilyUnavailable()
}
