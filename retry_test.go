// Copyright (C) 2024 SUSE LLC. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fileguard

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// The Retry Controller's behavior under real races (retry-then-succeed,
// retry-until-budget-exhausted) is exercised end-to-end through the public
// Walker API in walker_linux_test.go (TestWalkRetryFlappingTerminalFile,
// TestWalkRetryBudgetExhausted), since it only ever does anything
// interesting against real directory-fd races.

func TestErrRaceNeverEscapesPublicTaxonomy(t *testing.T) {
	// errRace is purely internal bookkeeping; a caller checking errors.Is
	// against the public sentinel taxonomy must never accidentally match it.
	assert.False(t, errors.Is(errRace, ErrNotFound))
	assert.False(t, errors.Is(errRace, ErrUntrustedLink))
	assert.NotNil(t, errRace)
}

func TestRetryWalkSucceedsWithoutAnyRace(t *testing.T) {
	dir := t.TempDir()
	w := New()
	res, err := w.retryWalk(dir, modeParentOnly, 0, 0)
	if err == nil {
		defer res.DirFd.Close()
	}
	assert.NoError(t, err)
}
