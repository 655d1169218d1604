//go:build linux

// Copyright (C) 2024 SUSE LLC. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fileguard

import (
	"os"

	"golang.org/x/sys/unix"
)

// lockKind tracks which flavor of advisory lock a FileLock currently holds.
type lockKind int

const (
	lockNone lockKind = iota
	lockShared
	lockExclusive
)

// FileLock is an ownership record for a whole-file advisory lock (spec
// §3/§4.5): ``{fd, lock_held}`` with fd == -1 meaning unlocked-and-closed.
// At most one of {Shared, Exclusive} is ever held at a time.
type FileLock struct {
	file   *os.File
	kind   lockKind
	walker *Walker
}

// NewFileLock wraps an already-open descriptor in a FileLock. The caller
// retains ownership of f until Unlock(closeFd=true) is called.
func NewFileLock(f *os.File) *FileLock {
	return &FileLock{file: f, walker: defaultWalker}
}

// fd reports the underlying descriptor, or -1 if none is held, matching the
// spec's `{fd = -1}` lifecycle description.
func (l *FileLock) fd() int {
	if l.file == nil {
		return -1
	}
	return int(l.file.Fd())
}

// Lock acquires an exclusive lock. If blocking is false and the lock is
// currently held elsewhere, it fails with WouldBlock. Re-locking while
// already holding an exclusive lock is a no-op success. Upgrading from a
// held shared lock requires a read-write descriptor: spec §4.5 mandates
// that this be enforced by the FileLock state machine itself, not left to
// flock(2) (which, unlike fcntl(F_SETLK), doesn't care about the open
// mode at the syscall level) -- a shared lock taken through a read-only
// fd can never become exclusive without the caller reopening read-write.
func (l *FileLock) Lock(blocking bool) error {
	if l.file == nil {
		return newError("lock", "", KindInvalidArgument, nil)
	}
	if l.kind == lockExclusive {
		return nil
	}
	if l.kind == lockShared {
		if writable, err := l.openedReadWrite(); err != nil {
			return err
		} else if !writable {
			return newError("lock", l.file.Name(), KindInvalidArgument, nil)
		}
	}
	op := unix.LOCK_EX
	if !blocking {
		op |= unix.LOCK_NB
	}
	if err := l.flockRetrySignal(op); err != nil {
		return err
	}
	l.kind = lockExclusive
	return nil
}

// openedReadWrite reports whether the wrapped descriptor was opened
// O_RDWR (or O_WRONLY), via F_GETFL, matching how the teacher library
// probes descriptor flags rather than tracking them separately.
func (l *FileLock) openedReadWrite() (bool, error) {
	flags, err := unix.FcntlInt(l.file.Fd(), unix.F_GETFL, 0)
	if err != nil {
		return false, newError("fcntl", l.file.Name(), KindIoError, err)
	}
	return flags&unix.O_ACCMODE != unix.O_RDONLY, nil
}

// Share acquires a shared lock, with the same blocking/no-op semantics as
// Lock (spec §4.5).
func (l *FileLock) Share(blocking bool) error {
	if l.file == nil {
		return newError("lock", "", KindInvalidArgument, nil)
	}
	if l.kind == lockShared || l.kind == lockExclusive {
		return nil
	}
	op := unix.LOCK_SH
	if !blocking {
		op |= unix.LOCK_NB
	}
	if err := l.flockRetrySignal(op); err != nil {
		return err
	}
	l.kind = lockShared
	return nil
}

// flockRetrySignal issues flock(2), retrying once on EINTR (spec §5
// "Cancellation": a second interruption surfaces Interrupted).
func (l *FileLock) flockRetrySignal(op int) error {
	interrupted := false
	for {
		err := unix.Flock(l.fd(), op)
		if err == nil {
			return nil
		}
		errno, _ := err.(unix.Errno)
		switch errno {
		case unix.EWOULDBLOCK:
			return newError("flock", l.file.Name(), KindWouldBlock, err)
		case unix.EINTR:
			if interrupted {
				return newError("flock", l.file.Name(), KindInterrupted, err)
			}
			interrupted = true
			l.walker.logger.Debug("flock interrupted by signal, retrying once", "path", l.file.Name())
			continue
		default:
			return newError("flock", l.file.Name(), KindIoError, err)
		}
	}
}

// Unlock releases whatever lock is held (a no-op success if none is), and
// if closeFd is true, closes the descriptor and resets fd to -1 (spec §4.5).
func (l *FileLock) Unlock(closeFd bool) error {
	if l.file == nil {
		return nil
	}
	if l.kind != lockNone {
		if err := unix.Flock(l.fd(), unix.LOCK_UN); err != nil {
			return newError("flock", l.file.Name(), KindIoError, err)
		}
		l.kind = lockNone
	}
	if closeFd {
		err := l.file.Close()
		l.file = nil
		if err != nil {
			return newError("close", "", KindIoError, err)
		}
	}
	return nil
}

// CheckExclusive reports whether an exclusive lock could be acquired right
// now without blocking; it leaves the lock state as it found it (spec §4.5).
// A FileLock that already holds an exclusive lock on this fd trivially
// satisfies this (flock is per-open-file-description, so re-requesting
// LOCK_EX|LOCK_NB on our own exclusive lock always succeeds instantly) --
// which matches testable property 7. A held shared lock satisfies it only
// when no other open file description also holds a shared lock.
func (l *FileLock) CheckExclusive() (bool, error) {
	if l.file == nil {
		return false, newError("lock", "", KindInvalidArgument, nil)
	}
	err := unix.Flock(l.fd(), unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		// We just silently acquired/kept an exclusive lock by probing; put
		// it back exactly how we found it so CheckExclusive stays a pure
		// predicate.
		switch l.kind {
		case lockNone:
			_ = unix.Flock(l.fd(), unix.LOCK_UN)
		case lockShared:
			_ = unix.Flock(l.fd(), unix.LOCK_SH)
		}
		return true, nil
	}
	if errno, ok := err.(unix.Errno); ok && errno == unix.EWOULDBLOCK {
		return false, nil
	}
	return false, newError("flock", l.file.Name(), KindIoError, err)
}

// LockPath opens path via SafeOpenCreatePerms (read-write, creating with
// PermsDefault if absent) and then acquires an exclusive lock, per spec
// §4.5. It returns 0 on success, -1 on a generic open failure, or the
// distinguished -2 when the containing directory itself does not exist --
// this trio of sentinel return values, rather than a Go error, is a
// deliberate spec-mandated surface (SPEC_FULL.md §8) so callers can branch
// on "missing parent" as a fast path.
func (l *FileLock) LockPath(path string, blocking bool) int {
	return l.lockViaPath(path, blocking, false)
}

// ShareViaPath is LockPath's shared-lock counterpart.
func (l *FileLock) ShareViaPath(path string, blocking bool) int {
	return l.lockViaPath(path, blocking, true)
}

func (l *FileLock) lockViaPath(path string, blocking bool, shared bool) int {
	f, err := l.walker.SafeOpenCreatePerms(path, unix.O_RDWR|unix.O_CREAT, PermsDefault)
	if err != nil {
		if Kind(err) == KindNotFound {
			return -2
		}
		return -1
	}
	l.file = f
	l.kind = lockNone
	if shared {
		if err := l.Share(blocking); err != nil {
			return -1
		}
		return 0
	}
	if err := l.Lock(blocking); err != nil {
		return -1
	}
	return 0
}
