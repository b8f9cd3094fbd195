// Package transport moves bundle payloads between the local store and a
// remote file host. The syncer only sees the CloudTransport interface so
// tests can swap in a fake.
package transport

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnauthorized is returned when the remote rejects the access token.
// Callers must not retry: the token needs to be re-acquired first.
var ErrUnauthorized = errors.New("access token rejected")

// ErrNoRemoteBundle is returned by Download when the remote holds no
// bundle yet.
var ErrNoRemoteBundle = errors.New("no remote bundle found")

// StatusError reports a non-2xx response from the remote.
type StatusError struct {
	Op     string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed with status %d", e.Op, e.Status)
}

// CloudTransport is the remote side of sync.
type CloudTransport interface {
	// Upload replaces the remote bundle with data.
	Upload(ctx context.Context, data []byte) error
	// Download returns the most recent remote bundle, or
	// ErrNoRemoteBundle when none exists.
	Download(ctx context.Context) ([]byte, error)
}
