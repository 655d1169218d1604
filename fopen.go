// Copyright (C) 2024 SUSE LLC. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fileguard

import (
	"bufio"
	"os"

	"golang.org/x/sys/unix"
)

// fopenFlags maps the C library's fopen(3) mode strings onto open(2) flags,
// per spec §6 ("mode strings map to open flags per the standard C
// library's fopen table").
func fopenFlags(mode string) (int, error) {
	switch mode {
	case "r":
		return unix.O_RDONLY, nil
	case "r+":
		return unix.O_RDWR, nil
	case "w":
		return unix.O_WRONLY | unix.O_CREAT | unix.O_TRUNC, nil
	case "w+":
		return unix.O_RDWR | unix.O_CREAT | unix.O_TRUNC, nil
	case "a":
		return unix.O_WRONLY | unix.O_CREAT | unix.O_APPEND, nil
	case "a+":
		return unix.O_RDWR | unix.O_CREAT | unix.O_APPEND, nil
	default:
		return 0, newError("fopen", "", KindInvalidArgument, nil)
	}
}

// SafeFopen is a thin buffered wrapper around SafeOpen: it resolves path
// exactly as SafeOpen does, then wraps the resulting descriptor in a
// bufio.ReadWriter, matching the mode semantics of the standard C fopen(3)
// table (spec §6). Buffered full-read/full-write convenience helpers
// themselves remain out of scope (spec §1); this only wires up the stream.
func (w *Walker) SafeFopen(path string, mode string) (*os.File, *bufio.ReadWriter, error) {
	flags, err := fopenFlags(mode)
	if err != nil {
		return nil, nil, err
	}
	f, err := w.SafeOpen(path, flags)
	if err != nil {
		return nil, nil, err
	}
	return f, bufio.NewReadWriter(bufio.NewReader(f), bufio.NewWriter(f)), nil
}

// SafeFopenCreatePerms is SafeFopen's counterpart for callers that need to
// control the permission bits used if the file is created.
func (w *Walker) SafeFopenCreatePerms(path string, mode string, perms os.FileMode) (*os.File, *bufio.ReadWriter, error) {
	flags, err := fopenFlags(mode)
	if err != nil {
		return nil, nil, err
	}
	f, err := w.SafeOpenCreatePerms(path, flags, perms)
	if err != nil {
		return nil, nil, err
	}
	return f, bufio.NewReadWriter(bufio.NewReader(f), bufio.NewWriter(f)), nil
}

func SafeFopen(path string, mode string) (*os.File, *bufio.ReadWriter, error) {
	return defaultWalker.SafeFopen(path, mode)
}

func SafeFopenCreatePerms(path string, mode string, perms os.FileMode) (*os.File, *bufio.ReadWriter, error) {
	return defaultWalker.SafeFopenCreatePerms(path, mode, perms)
}
