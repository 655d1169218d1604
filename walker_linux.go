//go:build linux

// Copyright (C) 2024-2025 SUSE LLC. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fileguard

import (
	"os"
	"path"

	"golang.org/x/sys/unix"
)

// walkMode selects the Walker's terminal-component behavior (spec §4.2).
type walkMode int

const (
	// modeOpenExisting opens an existing file, following trusted terminal
	// symlinks, each hop counted against the link-hop budget.
	modeOpenExisting walkMode = iota
	// modeOpenOrCreate opens an existing file, creating it if absent.
	modeOpenOrCreate
	// modeCreateOnly creates exclusively (O_EXCL|O_CREAT), refusing to
	// follow any terminal symlink at all.
	modeCreateOnly
	// modeParentOnly returns the parent directory fd and the terminal
	// name without opening the child, for operations (lchown) that must
	// act on the link itself.
	modeParentOnly
	// modeOpenNoFollow is used by chmod/chown: open the target directly as
	// an O_PATH handle, following trusted terminal symlinks exactly like
	// modeOpenExisting (chmod/chown apply the same "trust then follow"
	// rule to their terminal component).
	modeOpenNoFollow
)

// walkResult is what walk() hands back to an Operation Adapter.
type walkResult struct {
	// DirFd is the parent directory of the final component. Always
	// non-nil on success; the caller owns it and must close it.
	DirFd *os.File
	// Name is the terminal component's name, relative to DirFd.
	Name string
	// Fd is the opened handle to the final object. nil for modeParentOnly.
	Fd *os.File
	// preStat is the fstat of Fd taken right after it was opened; for an
	// existing object it has already been checked against the lstat taken
	// before the open (see openTerminalExisting).
	preStat unix.Stat_t
}

func euidEgid() (uint32, uint32) {
	return uint32(unix.Geteuid()), uint32(unix.Getegid())
}

// walk implements the Safe Walker (spec §4.2): it descends path one
// component at a time using directory-relative, no-follow lookups,
// rejecting any symlink whose owner fails the trust predicate, and
// returns a handle to (or the parent+name of) the component the mode
// requires. flags are the caller's originally requested open(2) flags;
// O_TRUNC is always stripped before the underlying openat(2) call and
// applied with ftruncate(2) by openTerminalExisting after its identity
// check, per spec §4.2 step 4 / §4.3.
func (w *Walker) walk(rawPath string, mode walkMode, flags int, perms os.FileMode) (*walkResult, error) {
	tok, err := tokenizeString(rawPath)
	if err != nil {
		return nil, err
	}

	var dirFd *os.File
	if tok.Absolute {
		dirFd, err = openRoot()
	} else {
		dirFd, err = openCwd()
	}
	if err != nil {
		return nil, newError("walk", rawPath, KindIoError, err)
	}
	closeDirFd := true
	defer func() {
		if closeDirFd && dirFd != nil {
			_ = dirFd.Close()
		}
	}()

	remaining := append([]string(nil), tok.Components...)
	if len(remaining) == 0 {
		// The path was "/" (or resolved to it): the root directory is
		// both the parent and the object itself.
		switch mode {
		case modeParentOnly:
			closeDirFd = false
			return &walkResult{DirFd: dirFd, Name: "."}, nil
		default:
			self, err := dupDir(dirFd)
			if err != nil {
				return nil, newError("walk", rawPath, KindIoError, err)
			}
			closeDirFd = false
			return &walkResult{DirFd: dirFd, Name: ".", Fd: self}, nil
		}
	}

	euid, egid := euidEgid()
	linksWalked := 0
	depth := 0

	for {
		component := remaining[0]
		remaining = remaining[1:]
		terminal := len(remaining) == 0

		if !terminal {
			w.hook.AfterComponent(depth, dirFd, component)
		}
		depth++

		if component == ".." {
			next, err := openatPath(dirFd, "..", unix.O_PATH|unix.O_DIRECTORY, 0)
			if err != nil {
				return nil, classifyOpenErr(err, "..")
			}
			if terminal && mode == modeParentOnly {
				closeDirFd = false
				_ = next.Close()
				return &walkResult{DirFd: dirFd, Name: ".."}, nil
			}
			_ = dirFd.Close()
			dirFd = next
			if terminal {
				self, err := dupDir(dirFd)
				if err != nil {
					return nil, newError("walk", rawPath, KindIoError, err)
				}
				closeDirFd = false
				return &walkResult{DirFd: dirFd, Name: ".", Fd: self}, nil
			}
			continue
		}

		if !terminal {
			next, linkTarget, linkErr := w.descendNonTerminal(dirFd, component, euid, egid)
			if linkErr != nil {
				return nil, linkErr
			}
			if linkTarget != "" {
				linksWalked++
				if linksWalked > w.maxSymlinks {
					return nil, newError("walk", rawPath, KindLinkLoop, unix.ELOOP)
				}
				remaining = expandSymlink(linkTarget, remaining)
				if path.IsAbs(linkTarget) {
					newRoot, err := openRoot()
					if err != nil {
						return nil, newError("walk", rawPath, KindIoError, err)
					}
					_ = dirFd.Close()
					dirFd = newRoot
				}
				continue
			}
			_ = dirFd.Close()
			dirFd = next
			continue
		}

		// Terminal component.
		if mode == modeParentOnly {
			closeDirFd = false
			return &walkResult{DirFd: dirFd, Name: component}, nil
		}

		res, linkTarget, err := w.openTerminal(dirFd, component, depth, mode, flags, perms, euid, egid)
		if err != nil {
			return nil, err
		}
		if linkTarget != "" {
			linksWalked++
			if linksWalked > w.maxSymlinks {
				return nil, newError("walk", rawPath, KindLinkLoop, unix.ELOOP)
			}
			remaining = expandSymlink(linkTarget, remaining)
			if path.IsAbs(linkTarget) {
				newRoot, err := openRoot()
				if err != nil {
					return nil, newError("walk", rawPath, KindIoError, err)
				}
				_ = dirFd.Close()
				dirFd = newRoot
			}
			continue
		}

		if tok.TrailingSlash && res.Fd != nil {
			st, statErr := fstatHandle(res.Fd)
			if statErr != nil {
				_ = res.Fd.Close()
				return nil, newError("walk", rawPath, KindIoError, statErr)
			}
			if st.Mode&unix.S_IFMT != unix.S_IFDIR {
				_ = res.Fd.Close()
				return nil, newError("walk", rawPath, KindNotADirectory, nil)
			}
		}

		closeDirFd = false
		res.DirFd = dirFd
		res.Name = component
		return res, nil
	}
}

// expandSymlink prepends a symlink target's components onto the
// not-yet-processed remainder of the path, exactly as spec §4.2 step 2b
// describes ("prepend its components onto the remaining path").
func expandSymlink(target string, remaining []string) []string {
	var targetComponents []string
	for _, part := range splitSlash(target) {
		if part == "" || part == "." {
			continue
		}
		targetComponents = append(targetComponents, part)
	}
	return append(targetComponents, remaining...)
}

func splitSlash(p string) []string {
	var out []string
	start := 0
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			out = append(out, p[start:i])
			start = i + 1
		}
	}
	out = append(out, p[start:])
	return out
}

// descendNonTerminal resolves one non-terminal component: if it's a
// directory, the caller advances into it; if it's a trusted symlink, the
// target string is returned for expansion; anything else is an error.
func (w *Walker) descendNonTerminal(dirFd *os.File, name string, euid, egid uint32) (next *os.File, linkTarget string, err error) {
	next, openErr := openatPath(dirFd, name, unix.O_PATH|unix.O_NOFOLLOW, 0)
	if openErr == nil {
		st, statErr := fstatHandle(next)
		if statErr != nil {
			_ = next.Close()
			return nil, "", newError("walk", name, KindIoError, statErr)
		}
		switch st.Mode & unix.S_IFMT {
		case unix.S_IFDIR:
			return next, "", nil
		case unix.S_IFLNK:
			// O_PATH|O_NOFOLLOW on a symlink yields a handle to the link
			// itself rather than ELOOP; resolve it like the ELOOP case.
			_ = next.Close()
			return w.resolveTrustedLink(dirFd, name, euid, egid)
		default:
			_ = next.Close()
			return nil, "", newError("walk", name, KindNotADirectory, nil)
		}
	}

	pe, ok := asPathErrno(openErr)
	if !ok {
		return nil, "", newError("walk", name, KindIoError, openErr)
	}
	switch pe {
	case unix.ELOOP:
		return w.resolveTrustedLink(dirFd, name, euid, egid)
	case unix.ENOENT:
		return nil, "", newError("walk", name, KindNotFound, openErr)
	case unix.ENOTDIR:
		return nil, "", newError("walk", name, KindNotADirectory, openErr)
	default:
		return nil, "", newError("walk", name, KindIoError, openErr)
	}
}

// resolveTrustedLink lstats name (relative to dirFd), applies the safety
// predicate, and -- if trusted -- reads and returns its target. An
// untrusted owner fails closed with UntrustedLink.
func (w *Walker) resolveTrustedLink(dirFd *os.File, name string, euid, egid uint32) (*os.File, string, error) {
	st, err := fstatatNoFollow(dirFd, name)
	if err != nil {
		return nil, "", newError("walk", name, KindIoError, err)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFLNK {
		// Switched to a non-symlink, non-directory object mid-race.
		return nil, "", newError("walk", name, KindNotADirectory, nil)
	}
	if !isTrusted(st.Uid, st.Gid, euid, egid) {
		w.logger.Warn("rejecting untrusted symlink", "name", name, "owner_uid", st.Uid, "owner_gid", st.Gid)
		return nil, "", newError("walk", name, KindUntrustedLink, nil)
	}
	target, err := readlinkat(dirFd, name)
	if err != nil {
		return nil, "", newError("walk", name, KindIoError, err)
	}
	return nil, target, nil
}

// openTerminal implements the per-mode terminal branch of spec §4.2 step 3.
// It returns (result, "", nil) on a fully resolved object, (nil, target,
// nil) when a trusted terminal symlink needs one more expansion, or a
// non-nil error.
func (w *Walker) openTerminal(dirFd *os.File, name string, depth int, mode walkMode, flags int, perms os.FileMode, euid, egid uint32) (*walkResult, string, error) {
	wantTrunc := flags&unix.O_TRUNC != 0
	attemptFlags := flags &^ unix.O_TRUNC

	switch mode {
	case modeOpenNoFollow:
		// chmod/chown only need a handle that names the inode, not
		// read/write access to the file's contents, so use O_PATH
		// the way the teacher library's directory lookups do (spec §4.4).
		return w.openTerminalExisting(dirFd, name, depth, attemptFlags|unix.O_PATH, false, euid, egid)

	case modeOpenExisting:
		return w.openTerminalExisting(dirFd, name, depth, attemptFlags, wantTrunc, euid, egid)

	case modeOpenOrCreate:
		res, target, err := w.openTerminalExisting(dirFd, name, depth, attemptFlags, wantTrunc, euid, egid)
		if err == nil || target != "" {
			return res, target, nil
		}
		if Kind(err) != KindNotFound {
			return nil, "", err
		}
		return w.createTerminal(dirFd, name, attemptFlags|unix.O_CREAT|unix.O_EXCL, perms, flags&unix.O_EXCL != 0, euid, egid)

	case modeCreateOnly:
		return w.createTerminal(dirFd, name, attemptFlags|unix.O_CREAT|unix.O_EXCL, perms, true, euid, egid)

	default:
		return nil, "", newError("walk", name, KindInvalidArgument, nil)
	}
}

// openTerminalExisting opens an existing terminal component, refusing to
// follow an untrusted symlink; for a trusted one it returns the link target
// for the walk loop to expand (one hop per call). The
// Hook fires between the identity-establishing lstat and the open(2) that
// acts on it: this is the exact race window the Retry Controller exists to
// detect (spec §4.2 step 4 / §4.3), and it's where a test double injects a
// swap to exercise that path deterministically.
func (w *Walker) openTerminalExisting(dirFd *os.File, name string, depth int, flags int, wantTrunc bool, euid, egid uint32) (*walkResult, string, error) {
	preStat, statErr := fstatatNoFollow(dirFd, name)
	if statErr != nil {
		if pe, ok := asPathErrno(statErr); ok && pe == unix.ENOENT {
			return nil, "", newError("open", name, KindNotFound, statErr)
		}
		return nil, "", newError("open", name, KindIoError, statErr)
	}

	if preStat.Mode&unix.S_IFMT == unix.S_IFLNK {
		if !isTrusted(preStat.Uid, preStat.Gid, euid, egid) {
			w.logger.Warn("rejecting untrusted terminal symlink", "name", name, "owner_uid", preStat.Uid, "owner_gid", preStat.Gid)
			return nil, "", newError("open", name, KindUntrustedLink, nil)
		}
		target, err := readlinkat(dirFd, name)
		if err != nil {
			return nil, "", newError("open", name, KindIoError, err)
		}
		return nil, target, nil
	}

	w.hook.AfterComponent(depth, dirFd, name)

	fd, err := openatPath(dirFd, name, flags|unix.O_NOFOLLOW, 0)
	if err != nil {
		if pe, ok := asPathErrno(err); ok && pe == unix.ENOENT {
			return nil, "", newError("open", name, KindNotFound, err)
		}
		return nil, "", newError("open", name, KindIoError, err)
	}

	postStat, err := fstatHandle(fd)
	if err != nil {
		_ = fd.Close()
		return nil, "", newError("open", name, KindIoError, err)
	}
	if !sameInode(preStat, postStat) {
		// The object was swapped between our lstat and our open: this is
		// exactly the transient race the Retry Controller exists to
		// tolerate (spec §4.2 step 4 / §4.3), not a genuine NotFound.
		_ = fd.Close()
		w.logger.Debug("terminal component identity changed mid-walk, retrying", "name", name)
		return nil, "", errRace
	}

	if wantTrunc {
		if err := unix.Ftruncate(int(fd.Fd()), 0); err != nil {
			_ = fd.Close()
			return nil, "", newError("open", name, KindIoError, err)
		}
	}

	return &walkResult{Fd: fd, preStat: postStat}, "", nil
}

// createTerminal performs an exclusive create, applying the trust
// predicate to whatever collided with us if the kernel reports EEXIST.
func (w *Walker) createTerminal(dirFd *os.File, name string, createFlags int, perms os.FileMode, requestedExcl bool, euid, egid uint32) (*walkResult, string, error) {
	fd, err := openatPath(dirFd, name, createFlags, uint32(perms.Perm()))
	if err == nil {
		st, statErr := fstatHandle(fd)
		if statErr != nil {
			_ = fd.Close()
			return nil, "", newError("create", name, KindIoError, statErr)
		}
		return &walkResult{Fd: fd, preStat: st}, "", nil
	}

	pe, ok := asPathErrno(err)
	if !ok || pe != unix.EEXIST {
		if ok && pe == unix.ENOENT {
			return nil, "", newError("create", name, KindNotFound, err)
		}
		return nil, "", newError("create", name, KindIoError, err)
	}

	st, statErr := fstatatNoFollow(dirFd, name)
	if statErr != nil {
		if pe2, ok2 := asPathErrno(statErr); ok2 && pe2 == unix.ENOENT {
			// Collided then vanished: reported as AlreadyExists, the safe
			// default, rather than retried.
			return nil, "", newError("create", name, KindAlreadyExists, err)
		}
		return nil, "", newError("create", name, KindIoError, statErr)
	}

	if st.Mode&unix.S_IFMT == unix.S_IFLNK {
		if !isTrusted(st.Uid, st.Gid, euid, egid) {
			w.logger.Warn("rejecting untrusted link switched into create path", "name", name, "owner_uid", st.Uid, "owner_gid", st.Gid)
			return nil, "", newError("create", name, KindUntrustedLink, nil)
		}
		// A safe link occupies the name. Whether or not it's dangling,
		// exclusive creation cannot proceed through it: the name already
		// exists (open question #2, spec.md §9 / §4.2 CreateOnly branch).
		return nil, "", newError("create", name, KindAlreadyExists, err)
	}

	return nil, "", newError("create", name, KindAlreadyExists, err)
}

func asPathErrno(err error) (unix.Errno, bool) {
	if pe, ok := err.(*os.PathError); ok {
		if errno, ok := pe.Err.(unix.Errno); ok {
			return errno, true
		}
	}
	if errno, ok := err.(unix.Errno); ok {
		return errno, true
	}
	return 0, false
}

func classifyOpenErr(err error, name string) error {
	if pe, ok := asPathErrno(err); ok {
		switch pe {
		case unix.ENOENT:
			return newError("walk", name, KindNotFound, err)
		case unix.ENOTDIR:
			return newError("walk", name, KindNotADirectory, err)
		}
	}
	return newError("walk", name, KindIoError, err)
}
