// Package keyring caches the cloud drive access token in the OS keyring.
// The token is written after sign-in and proactively cleared when the
// transport reports an auth failure, so a stale credential is never
// retried against the drive.
package keyring

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/julianstephens/habitloop/internal/constants"
)

var (
	// ErrNotFound is returned when no access token is stored in the keyring
	ErrNotFound = errors.New("access token not found in keyring")
	// ErrKeyringUnavailable is returned when the OS keyring is not available
	ErrKeyringUnavailable = errors.New("OS keyring is not available")
)

// GetAccessToken retrieves the drive access token from the OS keyring.
// Returns ErrNotFound if no token is stored.
func GetAccessToken() (string, error) {
	token, err := keyring.Get(constants.AppName, constants.DefaultKeyringUser)
	if err != nil {
		if err == keyring.ErrNotFound {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return token, nil
}

// SetAccessToken stores the drive access token in the OS keyring.
func SetAccessToken(token string) error {
	if token == "" {
		return errors.New("access token cannot be empty")
	}
	if err := keyring.Set(constants.AppName, constants.DefaultKeyringUser, token); err != nil {
		return fmt.Errorf("failed to store access token in keyring: %w", err)
	}
	return nil
}

// DeleteAccessToken removes the drive access token from the OS keyring.
func DeleteAccessToken() error {
	err := keyring.Delete(constants.AppName, constants.DefaultKeyringUser)
	if err != nil {
		if err == keyring.ErrNotFound {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete access token from keyring: %w", err)
	}
	return nil
}

// IsAvailable checks if the OS keyring is available on the current system.
// This is a best-effort check and may not catch all failure scenarios.
func IsAvailable() bool {
	_, err := keyring.Get(constants.AppName, constants.DefaultKeyringUser)
	return err == nil || err == keyring.ErrNotFound
}
