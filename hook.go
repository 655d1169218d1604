// Copyright (C) 2024 SUSE LLC. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fileguard

import "os"

// Hook is the Walker's sole supported point of intrusion (see spec §5 "Test
// hook"). For a non-terminal component it fires once before the Walker
// attempts to descend into it; for a terminal component that already exists
// and is not a symlink it fires between the identity-establishing lstat and
// the open(2) that acts on it -- the exact TOCTOU window the Retry
// Controller exists to close. It does not fire for a terminal "..", a
// terminal that is a symlink or is being created, or the terminal of a
// modeParentOnly walk. A test double
// can use this callback to race the Walker: swap a directory for a
// symlink, delete-and-recreate a file, etc. Production code always uses
// noopHook.
//
// This replaces the C source's file-scope globals (TEST_SYMLINK_COUNTDOWN
// and friends) with an interface value, so test intrusion is explicit at
// the call site rather than hidden package state.
type Hook interface {
	AfterComponent(depth int, dir *os.File, name string)
}

type noopHook struct{}

func (noopHook) AfterComponent(int, *os.File, string) {}

// HookFunc adapts a plain function to the Hook interface.
type HookFunc func(depth int, dir *os.File, name string)

func (f HookFunc) AfterComponent(depth int, dir *os.File, name string) {
	f(depth, dir, name)
}
