//go:build linux

// Copyright (C) 2024 SUSE LLC. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fileguard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openForLock(t *testing.T, path string) *os.File {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	return f
}

func TestFileLockExclusiveThenUnlock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	f := openForLock(t, path)
	defer f.Close()

	l := NewFileLock(f)
	require.NoError(t, l.Lock(true))
	require.NoError(t, l.Unlock(false))
}

func TestFileLockDoubleLockSameThread(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	f := openForLock(t, path)
	defer f.Close()

	l := NewFileLock(f)
	require.NoError(t, l.Lock(true))
	// Re-locking while already holding exclusive is a documented no-op
	// success (spec §4.5), not a deadlock or error, since flock(2) against
	// the same open file description is idempotent.
	require.NoError(t, l.Lock(true))
	require.NoError(t, l.Unlock(false))
}

func TestFileLockShareThenUpgradeToExclusive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	f := openForLock(t, path)
	defer f.Close()

	l := NewFileLock(f)
	require.NoError(t, l.Share(true))
	require.NoError(t, l.Lock(true))
	require.NoError(t, l.Unlock(false))
}

func TestFileLockShareUpgradeFailsOnReadOnlyFd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	writeFile(t, path, []byte("x"), 0o644)

	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	require.NoError(t, err)
	defer f.Close()

	l := NewFileLock(f)
	require.NoError(t, l.Share(true))
	err = l.Lock(true)
	require.Error(t, err)
	assert.Equal(t, KindInvalidArgument, Kind(err))
}

func TestFileLockExclusiveBlocksNonBlockingSecondHolder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	f1 := openForLock(t, path)
	defer f1.Close()
	f2 := openForLock(t, path)
	defer f2.Close()

	l1 := NewFileLock(f1)
	require.NoError(t, l1.Lock(true))

	l2 := NewFileLock(f2)
	err := l2.Lock(false)
	require.Error(t, err)
	assert.Equal(t, KindWouldBlock, Kind(err))
}

func TestFileLockUnlockWithCloseResetsState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	f := openForLock(t, path)

	l := NewFileLock(f)
	require.NoError(t, l.Lock(true))
	require.NoError(t, l.Unlock(true))
	assert.Equal(t, -1, l.fd())
}

func TestCheckExclusiveReportsContention(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	f1 := openForLock(t, path)
	defer f1.Close()
	f2 := openForLock(t, path)
	defer f2.Close()

	l1 := NewFileLock(f1)
	require.NoError(t, l1.Lock(true))

	l2 := NewFileLock(f2)
	ok, err := l2.CheckExclusive()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l1.Unlock(false))

	ok, err = l2.CheckExclusive()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockPathCreatesAndLocks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "new")

	l := &FileLock{walker: defaultWalker}
	rc := l.LockPath(path, true)
	assert.Equal(t, 0, rc)
	require.NoError(t, l.Unlock(true))
}

func TestLockPathMissingParentDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "noparent", "f")

	l := &FileLock{walker: defaultWalker}
	rc := l.LockPath(path, true)
	assert.Equal(t, -2, rc)
}
