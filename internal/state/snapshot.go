package state

import (
	"context"
	"encoding/json"
	"strings"

	"stark-arb-bot/internal/strategy"
)

const EngineSnapshotKey = "engine:last_snapshot"

// LoadEngineSnapshot returns the persisted engine counters, ok=false when
// none were saved yet.
func LoadEngineSnapshot(ctx context.Context, store Store) (strategy.Snapshot, bool, error) {
	if store == nil {
		return strategy.Snapshot{}, false, nil
	}
	raw, ok, err := store.Get(ctx, EngineSnapshotKey)
	if err != nil {
		return strategy.Snapshot{}, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return strategy.Snapshot{}, false, nil
	}
	var snap strategy.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return strategy.Snapshot{}, false, err
	}
	return snap, true, nil
}

func SaveEngineSnapshot(ctx context.Context, store Store, snap strategy.Snapshot) error {
	if store == nil {
		return nil
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return store.Set(ctx, EngineSnapshotKey, string(payload))
}
