// Copyright (C) 2024 SUSE LLC. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fileguard

// defaultMaxSymlinks is the link-hop budget enforced during a single walk.
// Linux's internal SYMLOOP_MAX is 40; this package keeps the teacher
// library's own, more generous constant (255) as its default so that a
// legitimate, if unusual, deep chain of trusted links is never the thing
// that fails a walk before an actual loop would.
const defaultMaxSymlinks = 255

// defaultRetryBudget is the bounded number of attempts the Retry Controller
// makes before surfacing the last observed failure (spec §4.3: "small
// constant, e.g. 5").
const defaultRetryBudget = 5

// Walker bundles the configurable knobs behind the package-level safe_*
// functions. The zero value is not usable; construct one with New.
type Walker struct {
	maxSymlinks int
	retryBudget int
	logger      Logger
	hook        Hook
}

// Option configures a Walker constructed by New.
type Option func(*Walker)

// WithMaxSymlinks overrides the link-hop budget (default 255).
func WithMaxSymlinks(n int) Option {
	return func(w *Walker) { w.maxSymlinks = n }
}

// WithRetryBudget overrides the bounded race-retry attempt count (default 5).
func WithRetryBudget(n int) Option {
	return func(w *Walker) { w.retryBudget = n }
}

// WithLogger overrides the diagnostic logger (default slog.Default()).
func WithLogger(l Logger) Option {
	return func(w *Walker) { w.logger = l }
}

// WithHook installs a race-injection hook (default: no-op). Production code
// should never need this; it exists for deterministic race tests.
func WithHook(h Hook) Option {
	return func(w *Walker) { w.hook = h }
}

// New constructs a Walker with the given options applied over the defaults.
func New(opts ...Option) *Walker {
	w := &Walker{
		maxSymlinks: defaultMaxSymlinks,
		retryBudget: defaultRetryBudget,
		logger:      defaultLogger(),
		hook:        noopHook{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// defaultWalker backs the package-level safe_* functions (spec §6), so
// callers that don't need custom knobs can use them directly without
// constructing a Walker themselves.
var defaultWalker = New()
