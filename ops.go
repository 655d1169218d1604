// Copyright (C) 2024 SUSE LLC. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fileguard

import (
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// Permission profiles recognized at the surface (spec §3). The core does
// not enumerate any others; callers needing a different mode pass it
// directly to SafeOpenCreatePerms / SafeCreat.
const (
	PermsDefault os.FileMode = 0o600
	PermsShared  os.FileMode = 0o644
)

// SafeOpen opens path along a walk that refuses to follow any untrusted
// symlink encountered on the way (spec §6 / §4.4). Per spec.md §4.4's
// "OpenExisting or OpenOrCreate per flags" dispatch, a caller that passes
// O_CREAT gets creation-on-absence with PermsDefault, exactly as
// open(2) itself would; callers that need a specific creation mode should
// use SafeOpenCreatePerms instead.
func (w *Walker) SafeOpen(path string, flags int) (*os.File, error) {
	if flags&unix.O_CREAT != 0 {
		return w.SafeOpenCreatePerms(path, flags, PermsDefault)
	}
	res, err := w.retryWalk(path, modeOpenExisting, flags, 0)
	if err != nil {
		return nil, err
	}
	_ = res.DirFd.Close()
	return res.Fd, nil
}

// SafeOpenCreatePerms opens path, creating it with perms if absent, along a
// walk that refuses to follow any untrusted symlink (spec §6). When the
// caller's flags include O_EXCL, this dispatches to the walker's dedicated
// CreateOnly branch (spec.md §4.2 step 3, scenario S6) instead of trying an
// open-existing attempt first: O_CREAT|O_EXCL must fail outright if the
// name is already occupied, not silently open whatever is already there.
func (w *Walker) SafeOpenCreatePerms(path string, flags int, perms os.FileMode) (*os.File, error) {
	mode := modeOpenOrCreate
	if flags&unix.O_EXCL != 0 {
		mode = modeCreateOnly
	}
	res, err := w.retryWalk(path, mode, flags, perms)
	if err != nil {
		return nil, err
	}
	_ = res.DirFd.Close()
	return res.Fd, nil
}

// SafeCreat is equivalent to SafeOpenCreatePerms with
// O_WRONLY|O_CREAT|O_TRUNC (spec §6).
func (w *Walker) SafeCreat(path string, perms os.FileMode) (*os.File, error) {
	return w.SafeOpenCreatePerms(path, unix.O_WRONLY|unix.O_CREAT|unix.O_TRUNC, perms)
}

// SafeChmod changes the mode of the file at path. A terminal symlink is
// followed only if it passes the trust predicate (spec §4.4).
func (w *Walker) SafeChmod(path string, mode os.FileMode) error {
	res, err := w.retryWalk(path, modeOpenNoFollow, unix.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer func() {
		_ = res.DirFd.Close()
		_ = res.Fd.Close()
	}()
	// res.Fd is an O_PATH handle, which fchmod(2) rejects with EBADF; chmod
	// through its /proc/self/fd entry instead, which names the same inode.
	procPath := "/proc/self/fd/" + strconv.Itoa(int(res.Fd.Fd()))
	if err := unix.Fchmodat(unix.AT_FDCWD, procPath, uint32(mode.Perm()), 0); err != nil {
		return newError("chmod", path, classifyErrno(err), err)
	}
	return nil
}

// SafeChown changes the owner and group of the file at path. A terminal
// symlink is followed only if it passes the trust predicate (spec §4.4).
// uid/gid of -1 mean "unchanged", passed straight through to the OS.
func (w *Walker) SafeChown(path string, uid, gid int) error {
	res, err := w.retryWalk(path, modeOpenNoFollow, unix.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer func() {
		_ = res.DirFd.Close()
		_ = res.Fd.Close()
	}()
	// res.Fd is an O_PATH handle, which fchown(2) rejects with EBADF;
	// fchownat with AT_EMPTY_PATH acts on the handle's own inode.
	if err := unix.Fchownat(int(res.Fd.Fd()), "", uid, gid, unix.AT_EMPTY_PATH); err != nil {
		return newError("chown", path, classifyErrno(err), err)
	}
	return nil
}

// SafeLchown changes the owner and group of the link (or file) at path
// itself, never the object it points to. It is insensitive to link safety
// -- spec §4.4 / testable property 3 -- because fchownat with
// AT_SYMLINK_NOFOLLOW acts on the link, which the caller already named
// directly.
func (w *Walker) SafeLchown(path string, uid, gid int) error {
	res, err := w.retryWalk(path, modeParentOnly, 0, 0)
	if err != nil {
		return err
	}
	defer res.DirFd.Close()
	if err := unix.Fchownat(int(res.DirFd.Fd()), res.Name, uid, gid, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return newError("lchown", path, classifyErrno(err), err)
	}
	return nil
}

func classifyErrno(err error) ErrorKind {
	errno, ok := err.(unix.Errno)
	if !ok {
		return KindIoError
	}
	switch errno {
	case unix.ENOENT:
		return KindNotFound
	case unix.EACCES, unix.EPERM:
		return KindPermissionDenied
	case unix.EINVAL:
		return KindInvalidArgument
	default:
		return KindIoError
	}
}

// Package-level convenience wrappers over a shared default Walker, for
// callers that don't need custom knobs (spec §6's operation list).

func SafeOpen(path string, flags int) (*os.File, error) {
	return defaultWalker.SafeOpen(path, flags)
}

func SafeOpenCreatePerms(path string, flags int, perms os.FileMode) (*os.File, error) {
	return defaultWalker.SafeOpenCreatePerms(path, flags, perms)
}

func SafeCreat(path string, perms os.FileMode) (*os.File, error) {
	return defaultWalker.SafeCreat(path, perms)
}

func SafeChmod(path string, mode os.FileMode) error {
	return defaultWalker.SafeChmod(path, mode)
}

func SafeChown(path string, uid, gid int) error {
	return defaultWalker.SafeChown(path, uid, gid)
}

func SafeLchown(path string, uid, gid int) error {
	return defaultWalker.SafeLchown(path, uid, gid)
}
