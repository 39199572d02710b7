// Package app drives the end-to-end backup and restore pipelines for one
// user of the sayings service.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sayingslab/backupd/internal/archive"
	"github.com/sayingslab/backupd/internal/config"
	"github.com/sayingslab/backupd/internal/export"
	"github.com/sayingslab/backupd/internal/lock"
	"github.com/sayingslab/backupd/internal/manifest"
	"github.com/sayingslab/backupd/internal/notify"
	"github.com/sayingslab/backupd/internal/storage"
	"github.com/sayingslab/backupd/internal/store"
	"github.com/sayingslab/backupd/internal/util"
)

type App struct {
	Cfg      *config.Config
	Store    *store.DB
	Exporter *export.Service
	Local    *storage.Local
	Remotes  []storage.Backend
	Log      zerolog.Logger
	Notifier notify.Notifier
}

func New(cfg *config.Config, db *store.DB, remotes []storage.Backend, log zerolog.Logger, notifier notify.Notifier) *App {
	return &App{
		Cfg:      cfg,
		Store:    db,
		Exporter: export.New(db),
		Local:    storage.NewLocal(cfg.Backup.Dir),
		Remotes:  remotes,
		Log:      log,
		Notifier: notifier,
	}
}

// ArchiveRef locates an archive to restore: either a local file path or a
// (backend, key) pair naming an object on a configured remote.
type ArchiveRef struct {
	Path    string
	Backend string
	Key     string
}

// BackupResult is returned once a backup run reaches a terminal state.
// Warnings carry remote-replication failures that did not fail the run.
type BackupResult struct {
	Record   *store.BackupRecord
	Manifest manifest.Manifest
	Warnings []string
}

// Restore outcomes.
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)

// RestoreResult aggregates what a restore run imported.
type RestoreResult struct {
	Outcome    string
	Created    map[string]int
	ItemErrors map[string][]export.ItemError
	Warnings   []string
}

// BackupInfo is one entry of the merged backup listing.
type BackupInfo struct {
	Name    string
	Size    int64
	Created time.Time
	Origin  string
}

// Backup runs the full pipeline for one user: export every entity kind
// into a scratch directory, write the manifest, pack the archive, then
// replicate to each configured remote. The local archive is the success
// criterion; remote failures become warnings. Any earlier stage failure
// marks the record failed and removes partial artifacts.
func (a *App) Backup(ctx context.Context, userID string) (result *BackupResult, err error) {
	start := time.Now()
	defer func() { a.notifyRun("backup", userID, start, result, err) }()

	guard, lockErr := lock.AcquireUser(a.Cfg.Global.LockDir, userID)
	if lockErr != nil {
		return nil, lockErr
	}
	defer guard.Release()

	ok, winErr := util.InWindow(time.Now(), a.Cfg.Schedule.WindowStart, a.Cfg.Schedule.WindowEnd, a.Cfg.Schedule.Timezone)
	if winErr != nil {
		return nil, winErr
	}
	if !ok {
		return nil, fmt.Errorf("current time is outside the configured backup window")
	}

	if err := os.MkdirAll(a.Cfg.Backup.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	filename := util.BackupFileName(userID, a.Cfg.Backup.Type, time.Now())
	record := store.NewBackupRecord(userID, filename, a.Cfg.Backup.Type)
	record.Status = store.StatusProcessing
	if err := a.Store.CreateBackupRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("stage record: %w", err)
	}

	// Scratch lives outside Backup.Dir so in-progress payload files are
	// never visible to the listing or retention walks.
	archivePath := filepath.Join(a.Cfg.Backup.Dir, filename)
	scratch, err := os.MkdirTemp("", strings.TrimSuffix(filename, ".zip")+"-")
	if err != nil {
		return nil, a.failBackup(ctx, record, archivePath, fmt.Errorf("stage scratch: %w", err))
	}
	defer os.RemoveAll(scratch)

	if err := ctx.Err(); err != nil {
		return nil, a.failBackup(ctx, record, archivePath, err)
	}

	payloads, counts, err := a.Exporter.Export(ctx, userID)
	if err != nil {
		return nil, a.failBackup(ctx, record, archivePath, fmt.Errorf("stage export: %w", err))
	}
	checksums := make(map[string]string, len(payloads))
	for kind, payload := range payloads {
		name := export.PayloadFile(kind)
		if err := os.WriteFile(filepath.Join(scratch, name), payload, 0o600); err != nil {
			return nil, a.failBackup(ctx, record, archivePath, fmt.Errorf("stage export: %w", err))
		}
		checksums[name] = manifest.Checksum(payload)
	}

	man := manifest.Build(userID, a.Cfg.Backup.Type, counts, checksums)
	if err := manifest.WriteFile(scratch, man); err != nil {
		return nil, a.failBackup(ctx, record, archivePath, fmt.Errorf("stage manifest: %w", err))
	}

	if err := ctx.Err(); err != nil {
		return nil, a.failBackup(ctx, record, archivePath, err)
	}

	size, err := archive.Pack(scratch, archivePath)
	if err != nil {
		return nil, a.failBackup(ctx, record, archivePath, fmt.Errorf("stage pack: %w", err))
	}

	warnings, locations := a.replicate(ctx, archivePath, filename)

	record.Status = store.StatusCompleted
	record.LocalPath = archivePath
	record.SizeBytes = size
	record.RemoteLocations = locations
	if err := a.Store.UpdateBackupRecord(ctx, record); err != nil {
		return nil, a.failBackup(ctx, record, archivePath, fmt.Errorf("stage record: %w", err))
	}

	a.applyRetention(ctx, userID, filename)

	a.Log.Info().Str("user", userID).Str("backup", filename).Int64("size", size).
		Int("remotes", len(locations)).Int("warnings", len(warnings)).Msg("backup completed")

	return &BackupResult{Record: record, Manifest: man, Warnings: warnings}, nil
}

// replicate uploads the archive to every remote backend concurrently.
// Each backend is independent; a failure becomes a warning naming the
// backend and never blocks the others.
func (a *App) replicate(ctx context.Context, archivePath, filename string) ([]string, store.RemoteLocations) {
	if len(a.Remotes) == 0 {
		return nil, nil
	}

	var mu sync.Mutex
	var warnings []string
	var locations store.RemoteLocations

	eg, egCtx := errgroup.WithContext(ctx)
	for _, remote := range a.Remotes {
		eg.Go(func() error {
			key := util.RemoteKey(a.Cfg.Storage.Prefix, filename)
			callCtx, cancel := context.WithTimeout(egCtx, a.Cfg.Global.RemoteTimeout)
			defer cancel()

			file, err := os.Open(archivePath)
			if err != nil {
				mu.Lock()
				warnings = append(warnings, fmt.Sprintf("upload to %s failed: %v", remote.Name(), err))
				mu.Unlock()
				return nil
			}
			defer file.Close()
			info, err := file.Stat()
			if err != nil {
				mu.Lock()
				warnings = append(warnings, fmt.Sprintf("upload to %s failed: %v", remote.Name(), err))
				mu.Unlock()
				return nil
			}

			if err := remote.Put(callCtx, key, file, info.Size()); err != nil {
				if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
					err = fmt.Errorf("%v: %w", err, storage.ErrUnavailable)
				}
				a.Log.Warn().Str("backend", remote.Name()).Err(err).Msg("remote upload failed")
				mu.Lock()
				warnings = append(warnings, fmt.Sprintf("upload to %s failed: %v", remote.Name(), err))
				mu.Unlock()
				return nil
			}

			mu.Lock()
			locations = append(locations, store.RemoteLocation{Backend: remote.Name(), Key: key})
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	sort.Slice(locations, func(i, j int) bool { return locations[i].Backend < locations[j].Backend })
	sort.Strings(warnings)
	return warnings, locations
}

func (a *App) failBackup(ctx context.Context, record *store.BackupRecord, archivePath string, cause error) error {
	os.Remove(archivePath)
	record.Status = store.StatusFailed
	record.Error = cause.Error()
	if err := a.Store.UpdateBackupRecord(context.WithoutCancel(ctx), record); err != nil {
		a.Log.Warn().Err(err).Str("record", record.ID).Msg("failed to mark backup record failed")
	}
	return cause
}

// Restore runs the restore pipeline: fetch, unpack, validate the
// manifest and checksums, then import into the target user. Nothing is
// written to the database until every validation has passed; per-item
// errors and count mismatches after that point are reported, not rolled
// back.
func (a *App) Restore(ctx context.Context, userID string, ref ArchiveRef) (result *RestoreResult, err error) {
	start := time.Now()
	defer func() { a.notifyRestore(userID, start, result, err) }()

	guard, lockErr := lock.AcquireUser(a.Cfg.Global.LockDir, userID)
	if lockErr != nil {
		return nil, lockErr
	}
	defer guard.Release()

	scratch, err := os.MkdirTemp("", "backupd-restore-")
	if err != nil {
		return nil, fmt.Errorf("stage scratch: %w", err)
	}
	defer os.RemoveAll(scratch)

	archivePath, err := a.fetchArchive(ctx, ref, scratch)
	if err != nil {
		return nil, err
	}

	extractDir := filepath.Join(scratch, "extract")
	if err := os.MkdirAll(extractDir, 0o750); err != nil {
		return nil, err
	}
	if err := archive.Unpack(archivePath, extractDir); err != nil {
		return nil, fmt.Errorf("stage unpack: %w", err)
	}

	man, err := manifest.ReadDir(extractDir)
	if err != nil {
		return nil, fmt.Errorf("stage manifest: %w", err)
	}
	if err := man.VerifyChecksums(extractDir); err != nil {
		return nil, fmt.Errorf("stage verify: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if a.Cfg.Restore.DryRun {
		a.Log.Info().Str("user", userID).Str("source_user", man.UserID).Msg("dry run restore, nothing imported")
		return &RestoreResult{
			Outcome:  OutcomeSuccess,
			Created:  map[string]int{},
			Warnings: []string{"dry run: no data imported"},
		}, nil
	}

	result = &RestoreResult{
		Created:    make(map[string]int, len(export.Kinds)),
		ItemErrors: make(map[string][]export.ItemError),
	}
	for _, kind := range export.Kinds {
		payload, readErr := os.ReadFile(filepath.Join(extractDir, export.PayloadFile(kind)))
		if readErr != nil {
			if os.IsNotExist(readErr) {
				if man.Counts[kind] > 0 {
					result.Warnings = append(result.Warnings, fmt.Sprintf("payload %s missing from archive", export.PayloadFile(kind)))
				}
				continue
			}
			return nil, readErr
		}

		created, itemErrs, importErr := a.Exporter.Import(ctx, userID, kind, payload)
		if importErr != nil {
			// The whole payload file was unreadable. Imports for other
			// kinds may already be committed, so report and continue.
			result.Warnings = append(result.Warnings, fmt.Sprintf("payload %s unreadable: %v", export.PayloadFile(kind), importErr))
			continue
		}
		result.Created[kind] = created
		if len(itemErrs) > 0 {
			result.ItemErrors[kind] = itemErrs
		}
	}

	for _, diff := range man.DiffCounts(result.Created) {
		result.Warnings = append(result.Warnings, "count mismatch: "+diff.String())
	}

	result.Outcome = restoreOutcome(man, result)
	a.Log.Info().Str("user", userID).Str("outcome", result.Outcome).
		Interface("created", result.Created).Int("warnings", len(result.Warnings)).Msg("restore finished")
	return result, nil
}

func restoreOutcome(man manifest.Manifest, result *RestoreResult) string {
	total := 0
	for _, n := range result.Created {
		total += n
	}
	declared := 0
	for _, n := range man.Counts {
		declared += n
	}
	switch {
	case total == 0 && declared > 0:
		return OutcomeFailed
	case len(result.ItemErrors) > 0 || len(result.Warnings) > 0:
		return OutcomePartial
	default:
		return OutcomeSuccess
	}
}

// fetchArchive resolves an ArchiveRef to a local file, downloading from
// the named remote backend when the ref is not a path. A fetch failure is
// fatal for restore.
func (a *App) fetchArchive(ctx context.Context, ref ArchiveRef, scratch string) (string, error) {
	if ref.Path != "" {
		if _, err := os.Stat(ref.Path); err != nil {
			return "", fmt.Errorf("archive not found: %s", ref.Path)
		}
		return ref.Path, nil
	}

	var backend storage.Backend
	for _, remote := range a.Remotes {
		if remote.Name() == ref.Backend {
			backend = remote
			break
		}
	}
	if backend == nil {
		return "", fmt.Errorf("unknown storage backend: %s", ref.Backend)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.Cfg.Global.RemoteTimeout)
	defer cancel()
	reader, err := backend.Get(callCtx, ref.Key)
	if err != nil {
		return "", fmt.Errorf("fetch %s from %s: %w", ref.Key, ref.Backend, err)
	}
	defer reader.Close()

	local := storage.NewLocal(scratch)
	if err := local.Put(callCtx, "fetched.zip", reader, -1); err != nil {
		return "", fmt.Errorf("fetch %s from %s: %w", ref.Key, ref.Backend, err)
	}
	return filepath.Join(scratch, "fetched.zip"), nil
}

// List merges local archives with every remote backend's objects for the
// user, deduplicated by archive filename (local wins), newest first. An
// unreachable backend contributes a warning instead of blocking the rest.
func (a *App) List(ctx context.Context, userID string) ([]BackupInfo, []string, error) {
	var warnings []string
	seen := map[string]bool{}
	var infos []BackupInfo

	add := func(objects []storage.ObjectInfo) {
		for _, obj := range objects {
			if !isArchiveKey(obj.Key) {
				continue
			}
			name := filepath.Base(obj.Key)
			if seen[name] {
				continue
			}
			seen[name] = true
			created := util.CreatedFromFileName(name)
			if created.IsZero() {
				created = obj.Modified
			}
			infos = append(infos, BackupInfo{Name: name, Size: obj.Size, Created: created, Origin: obj.Backend})
		}
	}

	localObjects, err := a.Local.List(ctx, util.UserPrefix(userID))
	if err != nil {
		return nil, nil, fmt.Errorf("list local backups: %w", err)
	}
	add(localObjects)

	remotePrefix := util.RemoteKey(a.Cfg.Storage.Prefix, util.UserPrefix(userID))
	for _, remote := range a.Remotes {
		callCtx, cancel := context.WithTimeout(ctx, a.Cfg.Global.RemoteTimeout)
		objects, err := remote.List(callCtx, remotePrefix)
		cancel()
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("list on %s failed: %v", remote.Name(), err))
			continue
		}
		add(objects)
	}

	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].Created.Equal(infos[j].Created) {
			return infos[i].Created.After(infos[j].Created)
		}
		return infos[i].Name < infos[j].Name
	})
	return infos, warnings, nil
}

// isArchiveKey filters listings to archive files, so stray files sharing
// the namespace are never reported or pruned as backups.
func isArchiveKey(key string) bool {
	return strings.HasSuffix(key, ".zip")
}

// Records returns the durable backup records for a user, newest first.
func (a *App) Records(ctx context.Context, userID string) ([]store.BackupRecord, error) {
	return a.Store.ListBackupRecordsByUser(ctx, userID)
}

// Validate checks database and storage connectivity.
func (a *App) Validate(ctx context.Context) error {
	if err := a.Store.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := os.MkdirAll(a.Cfg.Backup.Dir, 0o750); err != nil {
		return fmt.Errorf("backup dir: %w", err)
	}
	for _, remote := range a.Remotes {
		callCtx, cancel := context.WithTimeout(ctx, a.Cfg.Global.RemoteTimeout)
		_, err := remote.List(callCtx, a.Cfg.Storage.Prefix)
		cancel()
		if err != nil {
			return fmt.Errorf("backend %s: %w", remote.Name(), err)
		}
	}
	return nil
}

// applyRetention prunes old local archives for the user according to the
// configured policy. The archive just written is always kept.
func (a *App) applyRetention(ctx context.Context, userID, keepName string) {
	policy := a.Cfg.Backup.RetentionPolicy
	if policy.KeepLast == 0 && policy.KeepDays == 0 {
		return
	}
	objects, err := a.Local.List(ctx, util.UserPrefix(userID))
	if err != nil {
		a.Log.Warn().Err(err).Msg("retention listing failed")
		return
	}
	archives := objects[:0]
	for _, obj := range objects {
		if isArchiveKey(obj.Key) {
			archives = append(archives, obj)
		}
	}
	objects = archives
	sort.Slice(objects, func(i, j int) bool { return objects[i].Modified.After(objects[j].Modified) })

	cutoff := time.Now().AddDate(0, 0, -policy.KeepDays)
	for i, obj := range objects {
		if filepath.Base(obj.Key) == keepName {
			continue
		}
		if policy.KeepLast > 0 && i < policy.KeepLast {
			continue
		}
		if policy.KeepDays > 0 && obj.Modified.After(cutoff) {
			continue
		}
		if err := a.Local.Delete(ctx, obj.Key); err != nil {
			a.Log.Warn().Err(err).Str("key", obj.Key).Msg("retention delete failed")
			continue
		}
		a.Log.Info().Str("key", obj.Key).Msg("pruned old backup")
	}
}

func (a *App) notifyRun(kind, userID string, start time.Time, result *BackupResult, err error) {
	if a.Notifier == nil {
		return
	}
	ended := time.Now()
	event := notify.Event{
		Type:      kind,
		Status:    statusFromErr(err),
		UserID:    userID,
		StartedAt: start,
		EndedAt:   ended,
		Duration:  ended.Sub(start).Round(time.Millisecond).String(),
	}
	if result != nil {
		event.Backup = result.Record.Filename
		event.Warnings = result.Warnings
	}
	if err != nil {
		event.Error = err.Error()
		event.Message = fmt.Sprintf("%s for user %s failed", kind, userID)
	} else {
		event.Message = fmt.Sprintf("%s for user %s completed", kind, userID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if notifyErr := a.Notifier.Notify(ctx, event); notifyErr != nil {
		a.Log.Warn().Err(notifyErr).Msg("notification delivery failed")
	}
}

func (a *App) notifyRestore(userID string, start time.Time, result *RestoreResult, err error) {
	if a.Notifier == nil {
		return
	}
	ended := time.Now()
	event := notify.Event{
		Type:      "restore",
		Status:    statusFromErr(err),
		UserID:    userID,
		StartedAt: start,
		EndedAt:   ended,
		Duration:  ended.Sub(start).Round(time.Millisecond).String(),
	}
	if result != nil {
		event.Status = result.Outcome
		event.Warnings = result.Warnings
	}
	if err != nil {
		event.Error = err.Error()
		event.Message = fmt.Sprintf("restore for user %s failed", userID)
	} else {
		event.Message = fmt.Sprintf("restore for user %s finished", userID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if notifyErr := a.Notifier.Notify(ctx, event); notifyErr != nil {
		a.Log.Warn().Err(notifyErr).Msg("notification delivery failed")
	}
}

func statusFromErr(err error) string {
	if err == nil {
		return "success"
	}
	return "failed"
}
