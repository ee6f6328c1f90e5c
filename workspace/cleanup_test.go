package workspace_test

import (
	"context"
	"testing"

	"github.com/nimbusiot/lattice/actor"
	"github.com/nimbusiot/lattice/entity"
	"github.com/nimbusiot/lattice/internal/memdb"
	"github.com/nimbusiot/lattice/internal/shard"
	"github.com/nimbusiot/lattice/store"
	"github.com/nimbusiot/lattice/workspace"
)

func seedTelemetry(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()

	records := []store.Record{
		entity.Workspace{WorkspaceID: "w1", Alias: "acme", OwnerID: "u1"},
		entity.Device{WorkspaceID: "w1", DeviceID: "d1"},
		entity.Device{WorkspaceID: "w1", DeviceID: "d2"},
		entity.PointRecord{WorkspaceID: "w1", DeviceID: "d1", At: 1000, Seq: 1},
		entity.PointRecord{WorkspaceID: "w1", DeviceID: "d1", At: 2000, Seq: 2},
		entity.PointRecord{WorkspaceID: "w1", DeviceID: "d2", At: 1500, Seq: 1},
		entity.PointShard{WorkspaceID: "w1", DeviceID: "d1", Shard: "2025-03-14"},
	}
	for _, rec := range records {
		if err := st.Put(ctx, rec); err != nil {
			t.Fatalf("seed %s: %v", rec.EntityType(), err)
		}
	}
}

func TestCleanup_PurgesTelemetry(t *testing.T) {
	ctx := context.Background()
	st := store.New(memdb.New(), store.DefaultConfig())
	cleanup := workspace.NewCleanup(actor.NewSystem(0, nil), st, nil)
	seedTelemetry(t, st)

	status, err := cleanup.Start(ctx, "w1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if status.StartedAt == 0 || status.CompletedAt == 0 {
		t.Fatalf("expected completed run, got %+v", status)
	}

	// Both devices' telemetry partitions are empty.
	for _, deviceID := range []string{"d1", "d2"} {
		items, err := st.QueryByPartition(ctx, shard.DevicePK("w1", deviceID))
		if err != nil {
			t.Fatalf("query %s: %v", deviceID, err)
		}
		if len(items) != 0 {
			t.Errorf("expected empty partition for %s, got %d items", deviceID, len(items))
		}
	}

	// The workspace record is physically gone.
	if _, err := st.Get(ctx, store.Key{PK: shard.WorkspacePK("w1"), SK: shard.WorkspaceSK}); err == nil {
		t.Error("expected workspace record removed")
	}
}

func TestCleanup_StartIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := store.New(memdb.New(), store.DefaultConfig())
	cleanup := workspace.NewCleanup(actor.NewSystem(0, nil), st, nil)
	seedTelemetry(t, st)

	first, err := cleanup.Start(ctx, "w1")
	if err != nil {
		t.Fatalf("first start: %v", err)
	}

	second, err := cleanup.Start(ctx, "w1")
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if second.StartedAt != first.StartedAt || second.CompletedAt != first.CompletedAt {
		t.Errorf("expected second start to return the same run, got %+v then %+v", first, second)
	}
}

func TestCleanup_Status(t *testing.T) {
	st := store.New(memdb.New(), store.DefaultConfig())
	cleanup := workspace.NewCleanup(actor.NewSystem(0, nil), st, nil)

	if status := cleanup.Status("never-started"); status.StartedAt != 0 || status.CompletedAt != 0 {
		t.Errorf("expected zero status, got %+v", status)
	}
}
