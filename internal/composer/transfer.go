// ABOUTME: Store-to-store transfer orchestration with copy, cut, and ref modes
// ABOUTME: Composes export, remap, merge, and remove into one reported operation

package composer

import (
	"context"
	"fmt"

	"github.com/cursorkit/composer-transfer/internal/kvstore"
)

// Mode selects what a local transfer does with record identities.
type Mode string

const (
	// ModeCopy clones the records under fresh IDs; the source keeps its
	// originals and the target gets independent copies.
	ModeCopy Mode = "copy"
	// ModeCut moves the records: the target index references them under
	// their original IDs and they are detached from the source index.
	ModeCut Mode = "cut"
	// ModeRef adds the records to the target index under their original
	// IDs while the source keeps them too; both indexes then reference
	// the same payload keys.
	ModeRef Mode = "ref"
)

// ParseMode validates a mode string
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeCopy, ModeCut, ModeRef:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown transfer mode %q (want copy, cut, or ref)", s)
	}
}

// TransferOptions controls a local transfer.
type TransferOptions struct {
	// SelectedIDs restricts the transfer; nil means all source records
	SelectedIDs []string
	// MaxStoreBytes is the export size guard; zero disables it
	MaxStoreBytes int64
	// BackupDir is passed through to the merge
	BackupDir string
}

// TransferReport combines the export diagnostics with the merge outcome.
type TransferReport struct {
	Mode   Mode
	Export Diagnostics
	Merge  *MergeReport
	// Remapped maps source composer IDs to their fresh IDs. Nil except
	// in copy mode.
	Remapped map[string]string
	// RemovedFromSource counts records detached from the source index.
	// Zero except in cut mode.
	RemovedFromSource int
}

// LocalTransfer moves composer records between two index stores that
// share one payload store. Both stores live on the same machine; the
// payload store is the host application's global store, so in cut and
// ref modes no payload bytes move at all - only index membership
// changes. Copy mode remaps first so the clone is fully independent.
func LocalTransfer(ctx context.Context, srcIndex, dstIndex, payloadStore kvstore.Store, mode Mode, opts TransferOptions) (*TransferReport, error) {
	snap, diag, err := BuildSnapshot(ctx, srcIndex, payloadStore, ExportOptions{
		SelectedIDs:   opts.SelectedIDs,
		MaxStoreBytes: opts.MaxStoreBytes,
	})
	if err != nil {
		return nil, err
	}

	report := &TransferReport{Mode: mode, Export: *diag}
	sourceIDs := snap.RecordIDs()

	if mode == ModeCopy {
		var result *RemapResult
		snap, result = Remap(snap)
		report.Remapped = result.IDMap
		report.Export.Warnings = append(report.Export.Warnings, result.Diagnostics.Warnings...)
	}

	mergeReport, err := Merge(ctx, snap, dstIndex, payloadStore, MergeOptions{BackupDir: opts.BackupDir})
	report.Merge = mergeReport
	if err != nil {
		return report, err
	}

	if mode == ModeCut {
		removed, err := RemoveRecords(ctx, srcIndex, sourceIDs, MergeOptions{BackupDir: opts.BackupDir})
		if err != nil {
			return report, fmt.Errorf("records merged into target but source detach failed: %w", err)
		}
		report.RemovedFromSource = removed
	}

	return report, nil
}
