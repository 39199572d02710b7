// Package export converts a user's persisted entities to and from the
// structured payload files written into a backup archive.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sayingslab/backupd/internal/store"
)

// Entity kinds, one payload file per kind inside an archive.
const (
	KindSayings  = "sayings"
	KindSettings = "settings"
)

// Kinds lists every entity kind in the order payloads are written.
var Kinds = []string{KindSayings, KindSettings}

// ErrMalformedPayload means the whole payload file is unreadable. A
// single broken entry is reported as an ItemError instead and skipped.
var ErrMalformedPayload = errors.New("malformed payload")

// ItemError records one entry that could not be imported.
type ItemError struct {
	Index  int
	Reason string
}

func (e ItemError) String() string {
	return fmt.Sprintf("item %d: %s", e.Index, e.Reason)
}

// Service reads and writes entities through the app database.
type Service struct {
	DB *store.DB
}

func New(db *store.DB) *Service {
	return &Service{DB: db}
}

// PayloadFile maps an entity kind to its file name inside the archive.
func PayloadFile(kind string) string {
	return kind + ".json"
}

// Export serializes every entity kind owned by the user. Payloads are
// field-complete except the owning user id, which the importer supplies.
func (s *Service) Export(ctx context.Context, userID string) (map[string][]byte, map[string]int, error) {
	payloads := make(map[string][]byte, len(Kinds))
	counts := make(map[string]int, len(Kinds))

	sayings, err := s.DB.ListSayingsByUser(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("export sayings: %w", err)
	}
	data, err := json.MarshalIndent(sayings, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("export sayings: %w", err)
	}
	payloads[KindSayings] = data
	counts[KindSayings] = len(sayings)

	settings, err := s.DB.ListSettingsByUser(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("export settings: %w", err)
	}
	data, err = json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("export settings: %w", err)
	}
	payloads[KindSettings] = data
	counts[KindSettings] = len(settings)

	return payloads, counts, nil
}

// Import parses one entity-kind payload and creates entities owned by
// userID. A broken entry is skipped and recorded; only an unreadable
// payload aborts the batch.
func (s *Service) Import(ctx context.Context, userID, kind string, payload []byte) (int, []ItemError, error) {
	switch kind {
	case KindSayings:
		return s.importSayings(ctx, userID, payload)
	case KindSettings:
		return s.importSettings(ctx, userID, payload)
	default:
		return 0, nil, fmt.Errorf("unknown entity kind: %s", kind)
	}
}

func (s *Service) importSayings(ctx context.Context, userID string, payload []byte) (int, []ItemError, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(payload, &items); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	created := 0
	var itemErrs []ItemError
	for i, raw := range items {
		var saying store.Saying
		if err := json.Unmarshal(raw, &saying); err != nil {
			itemErrs = append(itemErrs, ItemError{Index: i, Reason: err.Error()})
			continue
		}
		if saying.Content == "" {
			itemErrs = append(itemErrs, ItemError{Index: i, Reason: "missing required field: content"})
			continue
		}
		saying.ID = 0
		saying.UUID = "" // regenerated; the unique constraint spans users
		saying.UserID = userID
		if err := s.DB.InsertSaying(ctx, &saying); err != nil {
			itemErrs = append(itemErrs, ItemError{Index: i, Reason: err.Error()})
			continue
		}
		created++
	}
	return created, itemErrs, nil
}

func (s *Service) importSettings(ctx context.Context, userID string, payload []byte) (int, []ItemError, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(payload, &items); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	created := 0
	var itemErrs []ItemError
	for i, raw := range items {
		var setting store.Setting
		if err := json.Unmarshal(raw, &setting); err != nil {
			itemErrs = append(itemErrs, ItemError{Index: i, Reason: err.Error()})
			continue
		}
		if setting.Key == "" {
			itemErrs = append(itemErrs, ItemError{Index: i, Reason: "missing required field: key"})
			continue
		}
		setting.UserID = userID
		if err := s.DB.UpsertSetting(ctx, &setting); err != nil {
			itemErrs = append(itemErrs, ItemError{Index: i, Reason: err.Error()})
			continue
		}
		created++
	}
	return created, itemErrs, nil
}
