// Copyright (c) 2026, the orphanage contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package backend

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go"
)

// Error taxonomy for backend failures. A failure degrades only the backend
// it came from; the scan continues with the remaining backends.
var (
	// ErrAuth means the client rejected the configured credentials.
	ErrAuth = errors.New("backend authentication failed")

	// ErrConnect means the client host could not be reached.
	ErrConnect = errors.New("backend unreachable")

	// ErrTransient marks failures worth retrying with backoff (timeouts,
	// 5xx responses).
	ErrTransient = errors.New("transient backend error")

	// ErrProtocol means the client answered with an unexpected response
	// shape. Not retried; the backend's data is discarded for this scan.
	ErrProtocol = errors.New("unexpected backend response")
)

const (
	retryAttempts = 3
	retryDelay    = 500 * time.Millisecond
)

// WithRetry runs op, retrying transient failures a bounded number of times
// with exponential backoff before giving up.
func WithRetry(ctx context.Context, op func() error) error {
	return retry.Do(
		op,
		retry.Context(ctx),
		retry.Attempts(retryAttempts),
		retry.Delay(retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, ErrTransient)
		}),
	)
}
