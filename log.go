// Copyright (C) 2024 SUSE LLC. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fileguard

import (
	"context"
	"log/slog"
)

// Logger is satisfied by *slog.Logger. It exists so callers can swap in a
// test logger (or a no-op one) without this package depending on slog's
// concrete handler machinery anywhere outside this file.
type Logger interface {
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

// slogAdapter lets this package's Warn/Debug calls ride on log/slog's
// Log method with a background context, matching how other_examples/isseis-go-safe-cmd-runner
// logs from its safefileio package: Warn for attack-relevant or
// recoverable anomalies, Debug for internal bookkeeping, never on the
// hot successful path.
type slogAdapter struct {
	l *slog.Logger
}

func (a slogAdapter) Warn(msg string, args ...any)  { a.l.Log(context.Background(), slog.LevelWarn, msg, args...) }
func (a slogAdapter) Debug(msg string, args ...any) { a.l.Log(context.Background(), slog.LevelDebug, msg, args...) }

func defaultLogger() Logger {
	return slogAdapter{l: slog.Default()}
}
