// Copyright (C) 2024 SUSE LLC. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fileguard

import (
	"errors"
	"fmt"
)

// ErrorKind classifies the failures this package can return, independent of
// the underlying syscall errno. Callers that need taxonomy-level behavior
// (e.g. "was this an untrusted link?") should use errors.Is against the
// sentinel values below, or Kind(err).
type ErrorKind int

const (
	// KindIoError covers any OS-reported failure not otherwise classified.
	KindIoError ErrorKind = iota
	KindInvalidArgument
	KindNotFound
	KindNotADirectory
	KindAlreadyExists
	KindUntrustedLink
	KindLinkLoop
	KindPermissionDenied
	KindWouldBlock
	KindInterrupted
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid argument"
	case KindNotFound:
		return "not found"
	case KindNotADirectory:
		return "not a directory"
	case KindAlreadyExists:
		return "already exists"
	case KindUntrustedLink:
		return "untrusted link"
	case KindLinkLoop:
		return "link loop"
	case KindPermissionDenied:
		return "permission denied"
	case KindWouldBlock:
		return "would block"
	case KindInterrupted:
		return "interrupted"
	default:
		return "io error"
	}
}

// Sentinel errors, one per ErrorKind other than KindIoError (which has no
// sentinel), so that callers can use errors.Is
// without needing to reach into an *Error's Kind field.
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotFound         = errors.New("not found")
	ErrNotADirectory    = errors.New("not a directory")
	ErrAlreadyExists    = errors.New("already exists")
	ErrUntrustedLink    = errors.New("untrusted link")
	ErrLinkLoop         = errors.New("too many symlinks")
	ErrPermissionDenied = errors.New("permission denied")
	ErrWouldBlock       = errors.New("operation would block")
	ErrInterrupted      = errors.New("interrupted")
)

var kindSentinel = map[ErrorKind]error{
	KindInvalidArgument:  ErrInvalidArgument,
	KindNotFound:         ErrNotFound,
	KindNotADirectory:    ErrNotADirectory,
	KindAlreadyExists:    ErrAlreadyExists,
	KindUntrustedLink:    ErrUntrustedLink,
	KindLinkLoop:         ErrLinkLoop,
	KindPermissionDenied: ErrPermissionDenied,
	KindWouldBlock:       ErrWouldBlock,
	KindInterrupted:      ErrInterrupted,
}

// Error is returned by every operation in this package. It carries enough
// context (operation name, path, classified kind, wrapped syscall error) to
// let a caller both log a useful message and branch on taxonomy.
type Error struct {
	Op   string
	Path string
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrUntrustedLink) (etc.) work against an *Error
// without the caller needing to inspect Kind directly.
func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinel[e.Kind]
	return ok && sentinel == target
}

func newError(op, path string, kind ErrorKind, err error) *Error {
	return &Error{Op: op, Path: path, Kind: kind, Err: err}
}

// Kind extracts the ErrorKind from err, if err is (or wraps) an *Error.
// Errors not produced by this package report KindIoError.
func Kind(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindIoError
}
