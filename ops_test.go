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
	"golang.org/x/sys/unix"
)

func TestSafeCreatTruncatesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	writeFile(t, path, []byte("this is long content"), 0o644)

	w := New()
	f, err := w.SafeCreat(path, 0o644)
	require.NoError(t, err)
	defer f.Close()

	st, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.Size())
}

func TestPackageLevelWrappersUseDefaultWalker(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")

	f, err := SafeOpenCreatePerms(path, unix.O_RDWR, PermsDefault)
	require.NoError(t, err)
	defer f.Close()

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, PermsDefault, st.Mode().Perm())
}

func TestSafeFopenWriteThenRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")

	f, rw, err := SafeFopen(path, "w")
	require.NoError(t, err)
	_, err = rw.WriteString("hi there")
	require.NoError(t, err)
	require.NoError(t, rw.Flush())
	require.NoError(t, f.Close())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hi there", string(got))
}

func TestFopenFlagsRejectsUnknownMode(t *testing.T) {
	_, err := fopenFlags("bogus")
	require.Error(t, err)
	assert.Equal(t, KindInvalidArgument, Kind(err))
}

func TestClassifyErrnoMapsCommonErrnos(t *testing.T) {
	assert.Equal(t, KindNotFound, classifyErrno(unix.ENOENT))
	assert.Equal(t, KindPermissionDenied, classifyErrno(unix.EACCES))
	assert.Equal(t, KindPermissionDenied, classifyErrno(unix.EPERM))
	assert.Equal(t, KindInvalidArgument, classifyErrno(unix.EINVAL))
	assert.Equal(t, KindIoError, classifyErrno(unix.EIO))
}
