package consensus

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kysee/zk-lightclient/types"
)

const snapshotPrefix = "update_"

// FileSource replays snapshots recorded on disk, one update_<attestedSlot>.json
// file per snapshot. It serves the same queries as Client for offline proving.
type FileSource struct {
	Dir string
}

func NewFileSource(dir string) *FileSource {
	return &FileSource{Dir: dir}
}

// Record writes update so that it can be replayed later.
func (f *FileSource) Record(update *types.TelepathyUpdate) (string, error) {
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", f.Dir, err)
	}
	bz, err := json.MarshalIndent(update, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}
	path := filepath.Join(f.Dir, fmt.Sprintf("%s%d.json", snapshotPrefix, update.AttestedHeader.Slot))
	if err := os.WriteFile(path, bz, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

func (f *FileSource) load(slot uint64) (*types.TelepathyUpdate, error) {
	path := filepath.Join(f.Dir, fmt.Sprintf("%s%d.json", snapshotPrefix, slot))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	var update types.TelepathyUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		return nil, &types.DeserializationError{Field: filepath.Base(path), Reason: err.Error()}
	}
	if err := update.Validate(); err != nil {
		return nil, err
	}
	return &update, nil
}

// slots lists the recorded attested slots in descending order.
func (f *FileSource) slots() ([]uint64, error) {
	entries, err := os.ReadDir(f.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", f.Dir, err)
	}
	var slots []uint64
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		slot, err := strconv.ParseUint(strings.TrimSuffix(strings.TrimPrefix(name, snapshotPrefix), ".json"), 10, 64)
		if err != nil {
			continue
		}
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] > slots[j] })
	return slots, nil
}

// GetTelepathyUpdate returns the newest snapshot for the named tags, or the
// snapshot attested at a given slot.
func (f *FileSource) GetTelepathyUpdate(_ context.Context, id BeaconID) (*types.TelepathyUpdate, error) {
	switch id {
	case Head, Finalized, Justified:
		slots, err := f.slots()
		if err != nil {
			return nil, err
		}
		if len(slots) == 0 {
			return nil, fmt.Errorf("no snapshots recorded in %s", f.Dir)
		}
		return f.load(slots[0])
	}
	slot, err := strconv.ParseUint(string(id), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("file source only resolves slots and tags, got %q", id)
	}
	return f.load(slot)
}

// GetHeader resolves the tags to the finalized header of the newest snapshot.
func (f *FileSource) GetHeader(ctx context.Context, id BeaconID) (types.BeaconBlockHeader, error) {
	update, err := f.GetTelepathyUpdate(ctx, id)
	if err != nil {
		return types.BeaconBlockHeader{}, err
	}
	if id == Finalized {
		return update.FinalizedHeader, nil
	}
	return update.AttestedHeader, nil
}

// GetFinalizedTelepathyUpdateInPeriod returns the newest snapshot that finalizes
// a block in period.
func (f *FileSource) GetFinalizedTelepathyUpdateInPeriod(_ context.Context, period uint64) (*types.TelepathyUpdate, error) {
	slots, err := f.slots()
	if err != nil {
		return nil, err
	}
	for _, slot := range slots {
		if types.Period(slot) < period {
			break
		}
		update, err := f.load(slot)
		if err != nil {
			return nil, err
		}
		if types.Period(update.FinalizedHeader.Slot) == period {
			return update, nil
		}
	}
	return nil, fmt.Errorf("period %d: %w", period, types.ErrNoFinalizedUpdate)
}
