//go:build linux

// Copyright (C) 2024-2025 SUSE LLC. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fileguard

import (
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sys/unix"
)

// dupDir duplicates dir's fd (close-on-exec) so the caller can hand out an
// independent handle to the same directory without risking the original
// being closed out from under a concurrent use.
func dupDir(dir *os.File) (*os.File, error) {
	fd, err := unix.FcntlInt(dir.Fd(), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return nil, os.NewSyscallError("fcntl(F_DUPFD_CLOEXEC)", err)
	}
	return os.NewFile(uintptr(fd), dir.Name()), nil
}

// openRoot opens "/" with O_PATH|O_NOFOLLOW, the starting dir_fd for any
// absolute walk.
func openRoot() (*os.File, error) {
	fd, err := unix.Open("/", unix.O_PATH|unix.O_DIRECTORY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: "/", Err: err}
	}
	return os.NewFile(uintptr(fd), "/"), nil
}

// openCwd duplicates the process's current-working-directory descriptor,
// the starting dir_fd for any relative walk.
func openCwd() (*os.File, error) {
	fd, err := unix.Open(".", unix.O_PATH|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: ".", Err: err}
	}
	return os.NewFile(uintptr(fd), "."), nil
}

// openatPath performs a directory-relative open with the given flags OR'd
// with O_CLOEXEC; the caller is always responsible for applying the symlink
// safety predicate before following through a returned handle, so every
// non-terminal open in this package carries O_NOFOLLOW itself.
func openatPath(dir *os.File, name string, flags int, mode uint32) (*os.File, error) {
	fd, err := unix.Openat(int(dir.Fd()), name, flags|unix.O_CLOEXEC, mode)
	runtime.KeepAlive(dir)
	if err != nil {
		return nil, &os.PathError{Op: "openat", Path: filepath.Join(dir.Name(), name), Err: err}
	}
	return os.NewFile(uintptr(fd), filepath.Join(dir.Name(), name)), nil
}

// fstatatNoFollow lstat's name relative to dir, never following a terminal
// symlink. This is how the Walker discovers "is this component a symlink"
// and, for a symlink, "who owns it" without ever opening through it.
func fstatatNoFollow(dir *os.File, name string) (unix.Stat_t, error) {
	var st unix.Stat_t
	err := unix.Fstatat(int(dir.Fd()), name, &st, unix.AT_SYMLINK_NOFOLLOW)
	runtime.KeepAlive(dir)
	if err != nil {
		return st, &os.PathError{Op: "fstatat", Path: filepath.Join(dir.Name(), name), Err: err}
	}
	return st, nil
}

// fstatHandle stats an already-open handle directly (no path re-resolution,
// the whole point of holding the fd in the first place).
func fstatHandle(f *os.File) (unix.Stat_t, error) {
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		return st, &os.PathError{Op: "fstat", Path: f.Name(), Err: err}
	}
	return st, nil
}

func readlinkat(dir *os.File, name string) (string, error) {
	size := 256
	for {
		buf := make([]byte, size)
		n, err := unix.Readlinkat(int(dir.Fd()), name, buf)
		runtime.KeepAlive(dir)
		if err != nil {
			return "", &os.PathError{Op: "readlinkat", Path: filepath.Join(dir.Name(), name), Err: err}
		}
		if n < size {
			return string(buf[:n]), nil
		}
		size *= 2
	}
}

// sameInode reports whether two stat results refer to the same underlying
// file, using the fields spec §4.2 mandates for the truncation-identity
// check: device, inode, link count, and owner.
func sameInode(a, b unix.Stat_t) bool {
	return a.Dev == b.Dev && a.Ino == b.Ino && a.Nlink == b.Nlink &&
		a.Uid == b.Uid && a.Gid == b.Gid
}
