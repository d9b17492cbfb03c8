package main

import (
	"fmt"
	"os"
	"strconv"

	"tools.zach/dev/seer/internal/paths"
)

// ///////////////////////////////////////////////
// Instance Lock
// ///////////////////////////////////////////////

// instanceLock is an advisory lock on "<memories>.lock". Two seers sharing a
// memories file would overwrite each other's knowledge at shutdown.
type instanceLock struct {
	f *os.File
}

// acquireLock takes the lock guarding memoriesFile without blocking and
// records this process id in it.
func acquireLock(memoriesFile string) (*instanceLock, error) {
	path := paths.LockFor(memoriesFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := lockFile(f); err != nil {
		holder, _ := os.ReadFile(path)
		f.Close()
		if len(holder) > 0 {
			return nil, fmt.Errorf("held by pid %s: %w", holder, err)
		}
		return nil, err
	}
	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
	}
	return &instanceLock{f: f}, nil
}

// release unlocks and removes the lock file.
func (l *instanceLock) release() {
	if l == nil || l.f == nil {
		return
	}
	name := l.f.Name()
	_ = unlockFile(l.f)
	l.f.Close()
	os.Remove(name)
	l.f = nil
}
