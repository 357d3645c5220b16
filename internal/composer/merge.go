// ABOUTME: Merge engine - conflict-free insertion of a snapshot into live target stores
// ABOUTME: Backup, verify, insert payloads, update index, verify again, then discard backups

package composer

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/cursorkit/composer-transfer/internal/kvstore"
)

// MergeState tracks how far a merge progressed. The two target stores
// cannot share a transaction, so intermediate states are exposed rather
// than hidden: after a crash or failure the state names exactly what
// partial result is possible.
type MergeState string

const (
	StateIdle             MergeState = "idle"
	StateBackedUp         MergeState = "backed_up"
	StatePreVerified      MergeState = "pre_verified"
	StatePayloadsInserted MergeState = "payloads_inserted"
	StateIndexUpdated     MergeState = "index_updated"
	StatePostVerified     MergeState = "post_verified"
	StateCommitted        MergeState = "committed"
	StateAborted          MergeState = "aborted"
	StateFailed           MergeState = "failed"
)

// MergeOptions controls merge behavior.
type MergeOptions struct {
	// BackupDir is where pre-merge backups are written. Empty means next
	// to each store file.
	BackupDir string
}

// MergeReport describes what a merge actually did.
type MergeReport struct {
	// State is the terminal state the merge reached
	State MergeState
	// InsertedPayloads counts payload-store keys actually written
	InsertedPayloads int
	// SkippedPayloads counts keys left untouched because they already existed
	SkippedPayloads int
	// IndexAdded counts records appended to the target index
	IndexAdded int
	// FinalRecordIDs lists the snapshot's record IDs as they exist in the
	// target after the merge
	FinalRecordIDs []string
	// BackupPaths lists backups taken for this merge. Empty after a
	// successful commit (they are discarded); populated on failure so an
	// operator can recover by hand.
	BackupPaths []string
	// Diagnostics carries non-fatal per-record observations
	Diagnostics Diagnostics
}

// Merge inserts snap into the target index and payload stores.
//
// Protocol, ordered for safety: back up both stores, verify both, insert
// payloads and bubbles with insert-if-absent (idempotent - existing keys
// are never overwritten), append missing records to the index, verify
// both again, discard the backups. The payload phase commits strictly
// before the index phase begins: an index is allowed to reference
// payloads that do not exist yet, but must never commit ahead of them.
//
// No backup is deleted before the merge reaches committed. On
// ErrPostconditionFailed the mutations are already durable and the
// retained backups are the recovery path; nothing is auto-rolled-back.
func Merge(ctx context.Context, snap *Snapshot, indexStore, payloadStore kvstore.Store, opts MergeOptions) (*MergeReport, error) {
	logger := slog.Default().With("component", "merge")
	report := &MergeReport{State: StateIdle}

	// Phase 1: backups. Failure here aborts before any mutation.
	stores := []kvstore.Store{indexStore}
	if payloadStore != indexStore {
		stores = append(stores, payloadStore)
	}
	var backups []*kvstore.Backup
	for _, st := range stores {
		b, err := st.Backup(ctx, opts.BackupDir)
		if err != nil {
			report.State = StateAborted
			return report, fmt.Errorf("backing up %s: %w", st.Path(), err)
		}
		backups = append(backups, b)
		report.BackupPaths = append(report.BackupPaths, b.Path)
	}
	report.State = StateBackedUp

	// Phase 2: never mutate a store already known to be inconsistent
	for _, st := range stores {
		ok, err := st.CheckIntegrity(ctx)
		if err != nil {
			report.State = StateAborted
			return report, fmt.Errorf("pre-merge integrity check on %s: %w", st.Path(), err)
		}
		if !ok {
			report.State = StateAborted
			return report, fmt.Errorf("%w: %s", ErrPreconditionFailed, st.Path())
		}
	}
	report.State = StatePreVerified

	// Phase 3: payload and bubble inserts, conditional and ordered.
	// Sequential by design - the skip counters and insert ordering are
	// part of the contract.
	type pair struct{ key, value string }
	var pairs []pair
	for _, rec := range snap.Records {
		payload, ok := snap.Payloads[rec.ComposerID]
		if !ok {
			report.Diagnostics.Warnf("record %s has no payload in snapshot", rec.ComposerID)
		} else {
			pairs = append(pairs, pair{PayloadKey(rec.ComposerID), payload})
		}
		for _, bubble := range snap.Bubbles[rec.ComposerID] {
			pairs = append(pairs, pair{bubble.Key, bubble.Value})
		}
	}

	err := payloadStore.WithTx(ctx, func(tx *sql.Tx) error {
		for _, p := range pairs {
			inserted, err := payloadStore.InsertIfAbsentTx(ctx, tx, p.key, []byte(p.value))
			if err != nil {
				return err
			}
			if inserted {
				report.InsertedPayloads++
			} else {
				report.SkippedPayloads++
			}
		}
		return nil
	})
	if err != nil {
		// The transaction rolled back; the payload store is unchanged
		report.State = StateAborted
		return report, fmt.Errorf("inserting payloads into %s: %w", payloadStore.Path(), err)
	}
	report.State = StatePayloadsInserted

	// Phase 4: index merge by set difference on composer ID, so a
	// repeated import is a no-op rather than a duplicate
	ix, err := ReadIndex(ctx, indexStore)
	if err != nil {
		report.State = StateFailed
		return report, err
	}
	if ix == nil {
		ix = &Index{}
	}
	existing := ix.IDSet()
	for _, rec := range snap.Records {
		if existing[rec.ComposerID] {
			report.Diagnostics.Warnf("record %s already present in target index", rec.ComposerID)
			continue
		}
		ix.AllComposers = append(ix.AllComposers, rec.Clone())
		report.IndexAdded++
	}
	if err := WriteIndex(ctx, indexStore, ix); err != nil {
		report.State = StateFailed
		return report, err
	}
	report.State = StateIndexUpdated
	report.FinalRecordIDs = snap.RecordIDs()

	// Phase 5: post-verification. A failure here is surfaced with the
	// backups retained; the engine's commits are already durable.
	for _, st := range stores {
		ok, err := st.CheckIntegrity(ctx)
		if err != nil {
			report.State = StateFailed
			return report, fmt.Errorf("post-merge integrity check on %s: %w", st.Path(), err)
		}
		if !ok {
			report.State = StateFailed
			return report, fmt.Errorf("%w: %s; backups retained at %v",
				ErrPostconditionFailed, st.Path(), report.BackupPaths)
		}
	}
	report.State = StatePostVerified

	for _, b := range backups {
		if err := b.Discard(); err != nil {
			// Not worth failing a committed merge over; the stray file
			// is harmless
			logger.Warn("could not discard backup", "backup", b.Path, "error", err)
		}
	}
	report.BackupPaths = nil
	report.State = StateCommitted

	logger.Info("merge committed",
		"payloads_inserted", report.InsertedPayloads,
		"payloads_skipped", report.SkippedPayloads,
		"index_added", report.IndexAdded)
	return report, nil
}

// RemoveRecords detaches records from a store's index. The payload store
// is deliberately untouched: orphaned payload and bubble keys are left
// behind as recoverable debris rather than risking data loss from a
// cascade delete.
func RemoveRecords(ctx context.Context, indexStore kvstore.Store, ids []string, opts MergeOptions) (int, error) {
	removal := make(map[string]bool, len(ids))
	for _, id := range ids {
		removal[id] = true
	}

	b, err := indexStore.Backup(ctx, opts.BackupDir)
	if err != nil {
		return 0, fmt.Errorf("backing up %s: %w", indexStore.Path(), err)
	}

	ix, err := ReadIndex(ctx, indexStore)
	if err != nil {
		return 0, err
	}
	if ix == nil {
		// Nothing to remove; the untouched backup can go
		if err := b.Discard(); err != nil {
			slog.Warn("could not discard backup", "backup", b.Path, "error", err)
		}
		return 0, nil
	}

	kept := ix.AllComposers[:0]
	removed := 0
	for _, rec := range ix.AllComposers {
		if removal[rec.ComposerID] {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	ix.AllComposers = kept

	if err := WriteIndex(ctx, indexStore, ix); err != nil {
		return 0, fmt.Errorf("writing filtered index (backup retained at %s): %w", b.Path, err)
	}

	if err := b.Discard(); err != nil {
		slog.Warn("could not discard backup", "backup", b.Path, "error", err)
	}

	slog.Info("records removed from index", "store", indexStore.Path(), "removed", removed)
	return removed, nil
}
