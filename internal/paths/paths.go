// Package paths centralizes file and directory names used across the project.
// All default locations are defined here as the single source of truth; the
// config package seeds its defaults from them.
package paths

import "path/filepath"

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// DefaultRoot is the shared directory mounted between the seer container and
// its sidecar. The spelling matches the volume name used by the test harness.
const DefaultRoot = "/tmp/testassitant"

// Data directory file names.
const (
	SocketFile   = "system_under_test_socket"
	MemoriesFile = "memories.json"
	ConfigFile   = "config.toml"
	LogFile      = "seer.log"
	LockSuffix   = ".lock"
)

// InjectedMessagesFile is where the test driver drops a pre-scripted batch of
// notifications. It lives at the container root, outside the shared directory.
const InjectedMessagesFile = "/injected_messages.json"

// BinaryName is the daemon executable name.
const BinaryName = "seer"

// ///////////////////////////////////////////////
// DataDir
// ///////////////////////////////////////////////

// DataDir provides path construction methods rooted at a data directory.
type DataDir struct {
	Root string
}

// Socket returns the full path to the sidecar notification socket.
func (d DataDir) Socket() string { return filepath.Join(d.Root, SocketFile) }

// Memories returns the full path to the persisted knowledge file.
func (d DataDir) Memories() string { return filepath.Join(d.Root, MemoriesFile) }

// Config returns the full path to the config file.
func (d DataDir) Config() string { return filepath.Join(d.Root, ConfigFile) }

// Log returns the full path to the log file.
func (d DataDir) Log() string { return filepath.Join(d.Root, LogFile) }

// LockFor returns the advisory lock path guarding the given file.
func LockFor(path string) string { return path + LockSuffix }
