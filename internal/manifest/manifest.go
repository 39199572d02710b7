package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sayingslab/backupd/internal/version"
)

// FileName is the manifest's name inside every archive.
const FileName = "manifest.json"

// FormatVersion is the newest manifest format this build writes and
// understands. Older versions parse fine; a newer one is rejected before
// any data is touched.
const FormatVersion = 2

// ErrInvalid marks a missing, unreadable, or unsupported manifest.
var ErrInvalid = errors.New("invalid manifest")

// Manifest describes what an archive contains. Written once at backup
// time, read once at restore time, never mutated.
type Manifest struct {
	FormatVersion int               `json:"format_version"`
	UserID        string            `json:"user_id"`
	BackupType    string            `json:"backup_type"`
	CreatedAt     time.Time         `json:"created_at"`
	Counts        map[string]int    `json:"counts"`
	Checksums     map[string]string `json:"checksums,omitempty"`
	ToolVersion   string            `json:"tool_version,omitempty"`
}

// CountMismatch reports one entity kind whose imported count differs from
// the manifest's declaration.
type CountMismatch struct {
	Kind     string
	Declared int
	Actual   int
}

func (m CountMismatch) String() string {
	return fmt.Sprintf("%s: declared %d, imported %d", m.Kind, m.Declared, m.Actual)
}

// Build stamps a new manifest with the current format version and time.
func Build(userID, backupType string, counts map[string]int, checksums map[string]string) Manifest {
	return Manifest{
		FormatVersion: FormatVersion,
		UserID:        userID,
		BackupType:    backupType,
		CreatedAt:     time.Now().UTC(),
		Counts:        counts,
		Checksums:     checksums,
		ToolVersion:   version.Version,
	}
}

// Parse decodes manifest bytes. Required fields must be present and the
// format version must not be newer than this build understands; unknown
// extra fields are ignored for forward compatibility within a version.
func Parse(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if m.FormatVersion <= 0 {
		return Manifest{}, fmt.Errorf("%w: missing format_version", ErrInvalid)
	}
	if m.FormatVersion > FormatVersion {
		return Manifest{}, fmt.Errorf("%w: format_version %d is newer than supported %d", ErrInvalid, m.FormatVersion, FormatVersion)
	}
	if m.UserID == "" {
		return Manifest{}, fmt.Errorf("%w: missing user_id", ErrInvalid)
	}
	if m.CreatedAt.IsZero() {
		return Manifest{}, fmt.Errorf("%w: missing created_at", ErrInvalid)
	}
	return m, nil
}

// WriteFile serializes the manifest into dir.
func WriteFile(dir string, m Manifest) error {
	payload, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, FileName), payload, 0o600)
}

// ReadDir loads and parses the manifest from an extracted archive dir.
func ReadDir(dir string) (Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return Manifest{}, fmt.Errorf("%w: manifest not found", ErrInvalid)
		}
		return Manifest{}, err
	}
	return Parse(data)
}

// VerifyChecksums recomputes the sha256 of every payload file named in the
// manifest and compares against the recorded digests. Manifests from
// format version 1 carried no checksums; an empty map passes.
func (m Manifest) VerifyChecksums(dir string) error {
	for name, want := range m.Checksums {
		got, err := fileChecksum(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("%w: checksum %s: %v", ErrInvalid, name, err)
		}
		if got != want {
			return fmt.Errorf("%w: checksum mismatch for %s", ErrInvalid, name)
		}
	}
	return nil
}

// DiffCounts compares actually imported counts against the declared ones.
// Mismatches are informational; the caller reports them as warnings.
func (m Manifest) DiffCounts(actual map[string]int) []CountMismatch {
	var diffs []CountMismatch
	for kind, declared := range m.Counts {
		if got := actual[kind]; got != declared {
			diffs = append(diffs, CountMismatch{Kind: kind, Declared: declared, Actual: got})
		}
	}
	sort.Slice(diffs, func(i, j int) bool { return diffs[i].Kind < diffs[j].Kind })
	return diffs
}

// Checksum returns the hex sha256 of a payload.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func fileChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
