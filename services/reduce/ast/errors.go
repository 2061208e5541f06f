// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"errors"
	"fmt"
)

// Sentinel errors for common parse failure conditions.
//
// These errors can be checked using errors.Is() to determine the
// category of failure without inspecting error messages.
var (
	// ErrUnsupportedLanguage indicates that no grammar is available for the
	// file extension.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrParseFailed indicates that tree-sitter produced no tree at all.
	//
	// This is different from syntax errors inside the tree, which are
	// tolerated and reported through Tree.HasErrors.
	ErrParseFailed = errors.New("parse failed")

	// ErrInvalidContent indicates that the provided content is invalid
	// and cannot be processed.
	//
	// Raised for a nil content slice. Bytes that are not valid UTF-8 are
	// accepted, as reducer inputs often carry raw bytes in literals.
	ErrInvalidContent = errors.New("invalid content")

	// ErrFileTooLarge is returned when input content exceeds the maximum file size.
	ErrFileTooLarge = errors.New("file exceeds maximum size limit")
)

// ParseError provides detailed information about a parse failure.
//
// ParseError wraps an underlying error with the file it concerns. It
// implements the error interface and can be unwrapped to access the cause.
type ParseError struct {
	// FilePath is the path to the file where the error occurred.
	FilePath string

	// Message describes the error in human-readable form.
	Message string

	// Cause is the underlying error that triggered this parse error.
	Cause error
}

// Error returns "file: message".
func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.FilePath, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// WrapParseError wraps an error with file context.
//
// If the error is already a ParseError, it returns it unchanged.
// Returns nil if err is nil.
func WrapParseError(err error, filePath string) error {
	if err == nil {
		return nil
	}

	// Don't double-wrap ParseErrors
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return err
	}

	return &ParseError{
		FilePath: filePath,
		Message:  err.Error(),
		Cause:    err,
	}
}

// IsUnsupportedLanguage checks if an error indicates an unsupported language.
func IsUnsupportedLanguage(err error) bool {
	return errors.Is(err, ErrUnsupportedLanguage)
}
