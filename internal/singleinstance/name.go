// Package singleinstance keeps one trainer running per user.
package singleinstance

import (
	"errors"

	"gtrainer/internal/userutil"
)

// ErrAlreadyRunning is returned by TryLock when another instance holds the mutex.
var ErrAlreadyRunning = errors.New("another instance is already running")

const mutexPrefix = `Local\gtrainer-`

// DefaultMutexName returns the per-user mutex name. It pairs with
// ipc.DefaultPipeName so a second launch can reach the first.
func DefaultMutexName() string {
	return mutexPrefix + userutil.ObjectSuffix()
}
