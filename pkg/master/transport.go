// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package master

import "context"

// Transport moves raw bytes to and from the bus. The engine never reads a
// transport: received bytes are pushed to the function registered with
// SetReceiver, from whatever goroutine the transport reads on.
type Transport interface {
	// Open connects the underlying line. Calling Open on an open
	// transport is a no-op.
	Open(ctx context.Context) error
	Close() error
	Write(p []byte) error
	IsConnected() bool
	SetReceiver(fn func([]byte))
}
