// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plughost Contributors

package plugin

import (
	"github.com/samber/oops"
)

// Error codes for plugin cache failures.
const (
	CodeStreamError         = "STREAM_ERROR"
	CodeMalformedCacheEntry = "MALFORMED_CACHE_ENTRY"
	CodeBinaryLoadFailure   = "BINARY_LOAD_FAILURE"
	CodeHandlerNotFound     = "HANDLER_NOT_FOUND"
	CodeNotResident         = "NOT_RESIDENT"
)

// ErrStream creates an error for a cache stream that cannot be read or written.
func ErrStream(op string, cause error) error {
	return oops.Code(CodeStreamError).
		With("op", op).
		Wrapf(cause, "%s plugin cache", op)
}

// ErrMalformedEntry creates an error for an incomplete or inconsistent cache entry.
func ErrMalformedEntry(element, reason string) error {
	return oops.Code(CodeMalformedCacheEntry).
		With("element", element).
		With("reason", reason).
		Errorf("malformed cache entry <%s>: %s", element, reason)
}

// ErrBinaryLoad creates an error for a file that cannot be used as a plugin binary.
func ErrBinaryLoad(path string, cause error) error {
	return oops.Code(CodeBinaryLoadFailure).
		With("path", path).
		Wrapf(cause, "load plugin binary")
}

// ErrHandlerNotFound creates an error for an entry no registered API handler accepts.
func ErrHandlerNotFound(api string, apiVersion int, identifier string) error {
	return oops.Code(CodeHandlerNotFound).
		With("api", api).
		With("api_version", apiVersion).
		With("identifier", identifier).
		Errorf("no API handler for %s version %d", api, apiVersion)
}

// ErrNotResident creates an error for a plugin that has no owning binary.
func ErrNotResident(identifier string) error {
	return oops.Code(CodeNotResident).
		With("identifier", identifier).
		Errorf("plugin %s is not attached to a binary", identifier)
}
