package repository

import "errors"

var (
	// ErrNotFound means the addressed row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate means a uniqueness constraint rejected the write.
	ErrDuplicate = errors.New("duplicate record")
	// ErrStateChanged means a conditional update matched no row because the
	// row was no longer in one of the expected states.
	ErrStateChanged = errors.New("record state changed")
	// ErrSecretTaken means a new prescription's redemption secret collided
	// with an existing one. Callers regenerate the secret and retry.
	ErrSecretTaken = errors.New("redemption secret already in use")
)
