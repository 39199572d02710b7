package util

import (
	"fmt"
	"path"
	"strings"
	"time"
)

const nameTimeLayout = "20060102T150405Z"

// BackupFileName builds the canonical archive name for a user's backup.
// The user id and timestamp keep concurrent runs for different users from
// colliding in the shared backup directory.
func BackupFileName(userID, backupType string, when time.Time) string {
	return fmt.Sprintf("backup_%s_%s_%s.zip", userID, when.UTC().Format(nameTimeLayout), backupType)
}

// UserPrefix is the listing prefix matching every archive of one user.
func UserPrefix(userID string) string {
	return fmt.Sprintf("backup_%s_", userID)
}

// RemoteKey places an archive name under the configured storage prefix.
func RemoteKey(prefix, filename string) string {
	if prefix == "" {
		return filename
	}
	return path.Join(strings.Trim(prefix, "/"), filename)
}

// CreatedFromFileName recovers the creation timestamp embedded in an
// archive name. Returns the zero time when the name does not match.
func CreatedFromFileName(name string) time.Time {
	trimmed := strings.TrimSuffix(path.Base(name), ".zip")
	parts := strings.Split(trimmed, "_")
	if len(parts) < 4 {
		return time.Time{}
	}
	stamp := parts[len(parts)-2]
	when, err := time.Parse(nameTimeLayout, stamp)
	if err != nil {
		return time.Time{}
	}
	return when
}
