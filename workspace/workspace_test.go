package workspace_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nimbusiot/lattice/actor"
	"github.com/nimbusiot/lattice/entity"
	"github.com/nimbusiot/lattice/internal/memdb"
	"github.com/nimbusiot/lattice/internal/shard"
	"github.com/nimbusiot/lattice/store"
	"github.com/nimbusiot/lattice/workspace"
)

type fixture struct {
	st      *store.Store
	svc     *workspace.Service
	cleanup *workspace.Cleanup
}

func newFixture() *fixture {
	sys := actor.NewSystem(0, nil)
	st := store.New(memdb.New(), store.DefaultConfig())
	cleanup := workspace.NewCleanup(sys, st, nil)
	return &fixture{
		st:      st,
		svc:     workspace.NewService(sys, st, cleanup, nil),
		cleanup: cleanup,
	}
}

func acme() entity.Workspace {
	return entity.Workspace{
		WorkspaceID: "w1",
		Name:        "Acme Corp",
		Alias:       "acme",
		OwnerID:     "u1",
	}
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	if err := f.svc.Create(ctx, acme()); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Workspace record, alias index, and owner membership all exist.
	if _, err := f.st.Get(ctx, store.Key{PK: shard.WorkspacePK("w1"), SK: shard.WorkspaceSK}); err != nil {
		t.Errorf("workspace record: %v", err)
	}

	id, err := f.svc.Resolve(ctx, "acme")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != "w1" {
		t.Errorf("expected workspace w1, got %q", id)
	}

	member := entity.Membership{WorkspaceID: "w1", UserID: "u1"}
	if _, err := f.st.Get(ctx, member.RecordKey()); err != nil {
		t.Errorf("membership record: %v", err)
	}
}

func TestCreate_AliasTaken(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	if err := f.svc.Create(ctx, acme()); err != nil {
		t.Fatalf("create: %v", err)
	}

	other := acme()
	other.WorkspaceID = "w2"
	err := f.svc.Create(ctx, other)
	if !errors.Is(err, workspace.ErrAliasTaken) {
		t.Fatalf("expected ErrAliasTaken, got %v", err)
	}

	// The loser wrote nothing.
	if _, err := f.st.Get(ctx, store.Key{PK: shard.WorkspacePK("w2"), SK: shard.WorkspaceSK}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected no w2 record, got %v", err)
	}
}

func TestRename(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	if err := f.svc.Create(ctx, acme()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.svc.Rename(ctx, "w1", "acme-io"); err != nil {
		t.Fatalf("rename: %v", err)
	}

	id, err := f.svc.Resolve(ctx, "acme-io")
	if err != nil {
		t.Fatalf("resolve new alias: %v", err)
	}
	if id != "w1" {
		t.Errorf("expected w1, got %q", id)
	}

	// The old alias is released.
	if _, err := f.svc.Resolve(ctx, "acme"); !errors.Is(err, workspace.ErrWorkspaceNotFound) {
		t.Errorf("expected old alias released, got %v", err)
	}

	// And immediately reusable.
	reuse := entity.Workspace{WorkspaceID: "w3", Alias: "acme", OwnerID: "u3"}
	if err := f.svc.Create(ctx, reuse); err != nil {
		t.Fatalf("create with released alias: %v", err)
	}
	if id, _ := f.svc.Resolve(ctx, "acme"); id != "w3" {
		t.Errorf("expected reclaimed alias to resolve to w3, got %q", id)
	}
}

func TestRename_SameAliasIsNoOp(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	if err := f.svc.Create(ctx, acme()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.svc.Rename(ctx, "w1", "acme"); err != nil {
		t.Fatalf("rename to same alias: %v", err)
	}
	if id, err := f.svc.Resolve(ctx, "acme"); err != nil || id != "w1" {
		t.Errorf("expected alias unchanged, got %q, %v", id, err)
	}
}

func TestRename_TargetTaken(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	if err := f.svc.Create(ctx, acme()); err != nil {
		t.Fatalf("create w1: %v", err)
	}
	other := entity.Workspace{WorkspaceID: "w2", Alias: "globex", OwnerID: "u2"}
	if err := f.svc.Create(ctx, other); err != nil {
		t.Fatalf("create w2: %v", err)
	}

	if err := f.svc.Rename(ctx, "w1", "globex"); !errors.Is(err, workspace.ErrAliasTaken) {
		t.Fatalf("expected ErrAliasTaken, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	if err := f.svc.Create(ctx, acme()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.svc.Delete(ctx, "w1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := f.st.Get(ctx, store.Key{PK: shard.WorkspacePK("w1"), SK: shard.WorkspaceSK}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected workspace tombstoned, got %v", err)
	}
	if _, err := f.svc.Resolve(ctx, "acme"); !errors.Is(err, workspace.ErrWorkspaceNotFound) {
		t.Errorf("expected alias tombstoned, got %v", err)
	}

	// Deleting an already-deleted workspace reports not found.
	if err := f.svc.Delete(ctx, "w1"); !errors.Is(err, workspace.ErrWorkspaceNotFound) {
		t.Errorf("expected ErrWorkspaceNotFound, got %v", err)
	}
}

func TestDelete_KicksOffCleanup(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	if err := f.svc.Create(ctx, acme()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.svc.Delete(ctx, "w1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if f.cleanup.Status("w1").CompletedAt != 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("cleanup never completed")
}

func TestResolve_UnknownAlias(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.Resolve(context.Background(), "ghost"); !errors.Is(err, workspace.ErrWorkspaceNotFound) {
		t.Fatalf("expected ErrWorkspaceNotFound, got %v", err)
	}
}
