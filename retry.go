// Copyright (C) 2024 SUSE LLC. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fileguard

import (
	"errors"
	"os"
	"time"

	"gopkg.in/retry.v1"
)

// errRace is the internal signal a walk() attempt uses to say "I saw the
// terminal object change identity between my lstat and my open; this was a
// benign race, not a real failure". It is never returned bare: the Retry
// Controller either swallows it (by retrying) or, once the attempt budget
// is exhausted, wraps it in a NotFound *Error.
var errRace = errors.New("fileguard: transient identity race")

// retryStrategy bounds the Retry Controller to w.retryBudget attempts with a
// negligible, effectively-fixed delay (Factor: 1 makes Exponential behave
// like a flat backoff) -- these races are expected to resolve within a
// handful of scheduler quanta, not after any meaningful wait. Grounded on
// canonical-snapd's own use of this combinator in httputil/retry_test.go.
func (w *Walker) retryStrategy() retry.Strategy {
	return retry.LimitCount(w.retryBudget, retry.Exponential{
		Initial: time.Millisecond,
		Factor:  1,
	})
}

// retryWalk runs walk in a bounded loop (spec §4.3): the caller's intended
// flags (including O_TRUNC) are passed in full on every attempt -- walk()
// itself is responsible for stripping and re-arming O_TRUNC around its
// identity check -- so a retry here is simply "run the whole walk again".
// Exceeding the budget surfaces the last observed failure, translating a
// leftover errRace into NotFound (the most accurate taxonomy kind for "the
// object kept disappearing out from under us").
func (w *Walker) retryWalk(path string, mode walkMode, flags int, perms os.FileMode) (*walkResult, error) {
	var lastErr error
	attempts := 0
	for a := retry.Start(w.retryStrategy(), nil); a.Next(); {
		attempts++
		res, err := w.walk(path, mode, flags, perms)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, errRace) {
			return nil, err
		}
		lastErr = err
		w.logger.Debug("retrying walk after transient race", "path", path, "attempt", attempts)
		if !a.More() {
			break
		}
	}
	if lastErr != nil {
		return nil, newError("walk", path, KindNotFound, lastErr)
	}
	return nil, newError("walk", path, KindIoError, nil)
}
