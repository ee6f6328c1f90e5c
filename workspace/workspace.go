// Package workspace owns tenant lifecycle: creation and rename with a
// unique alias, soft deletion, and the cleanup actor that hard-deletes a
// removed workspace's telemetry history.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nimbusiot/lattice/actor"
	"github.com/nimbusiot/lattice/entity"
	"github.com/nimbusiot/lattice/internal/shard"
	"github.com/nimbusiot/lattice/store"
)

var (
	// ErrAliasTaken is returned when the candidate alias already maps to a
	// live workspace.
	ErrAliasTaken = errors.New("lattice: alias already taken")

	// ErrWorkspaceNotFound is returned when the addressed workspace is
	// missing or deleted.
	ErrWorkspaceNotFound = errors.New("lattice: workspace not found")
)

// Service manages workspace records and their secondary indexes. Alias
// checks serialize per alias key: competing requests for the same alias
// cannot interleave. Two different aliases racing for the same workspace ID
// are not covered by this mechanism.
type Service struct {
	sys     *actor.System
	st      *store.Store
	cleanup *Cleanup
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a workspace service.
func NewService(sys *actor.System, st *store.Store, cleanup *Cleanup, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		sys:     sys,
		st:      st,
		cleanup: cleanup,
		logger:  logger,
		now:     time.Now,
	}
}

func aliasKey(alias string) string { return "alias:" + alias }

// Create writes the workspace, its alias index, and the owner's membership.
// The alias index is checked before writing; the writes are a best-effort
// sequence, not an atomic transaction.
func (s *Service) Create(ctx context.Context, ws entity.Workspace) error {
	return s.sys.Do(ctx, aliasKey(ws.Alias), func(ctx context.Context) error {
		taken, err := s.aliasInUse(ctx, ws.Alias)
		if err != nil {
			return err
		}
		if taken {
			return ErrAliasTaken
		}

		return s.st.Transaction(ctx, []store.Step{
			{Put: ws},
			{Put: entity.AliasIndex{Alias: ws.Alias, WorkspaceID: ws.WorkspaceID}},
			{Put: entity.Membership{WorkspaceID: ws.WorkspaceID, UserID: ws.OwnerID, Role: "owner"}},
		})
	})
}

// Rename changes a workspace's alias: claim the new alias, update the
// workspace record, tombstone the old alias index. Serialized on the NEW
// alias, so two tenants cannot both claim it.
func (s *Service) Rename(ctx context.Context, workspaceID, newAlias string) error {
	return s.sys.Do(ctx, aliasKey(newAlias), func(ctx context.Context) error {
		ws, err := s.get(ctx, workspaceID)
		if err != nil {
			return err
		}
		if ws.Alias == newAlias {
			return nil
		}

		taken, err := s.aliasInUse(ctx, newAlias)
		if err != nil {
			return err
		}
		if taken {
			return ErrAliasTaken
		}

		oldIndex := entity.AliasIndex{Alias: ws.Alias}
		oldKey := oldIndex.RecordKey()
		ws.Alias = newAlias

		return s.st.Transaction(ctx, []store.Step{
			{Put: entity.AliasIndex{Alias: newAlias, WorkspaceID: workspaceID}},
			{Put: *ws},
			{SoftDelete: &oldKey},
		})
	})
}

// Delete tombstones the workspace, its alias index, and the owner's
// membership, then kicks off a detached cleanup run.
func (s *Service) Delete(ctx context.Context, workspaceID string) error {
	ws, err := s.get(ctx, workspaceID)
	if err != nil {
		return err
	}

	aliasIdx := entity.AliasIndex{Alias: ws.Alias}
	aliasIdxKey := aliasIdx.RecordKey()
	member := entity.Membership{WorkspaceID: workspaceID, UserID: ws.OwnerID}
	memberKey := member.RecordKey()
	wsKey := ws.RecordKey()

	if err := s.st.Transaction(ctx, []store.Step{
		{SoftDelete: &wsKey},
		{SoftDelete: &aliasIdxKey},
		{SoftDelete: &memberKey},
	}); err != nil {
		return err
	}

	actor.Detach(s.logger, "workspace-cleanup", func(ctx context.Context) error {
		_, err := s.cleanup.Start(ctx, workspaceID)
		return err
	})
	return nil
}

// Resolve looks a workspace up by alias through the alias index.
func (s *Service) Resolve(ctx context.Context, alias string) (string, error) {
	idx := entity.AliasIndex{Alias: alias}
	item, err := s.st.Get(ctx, idx.RecordKey())
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrWorkspaceNotFound
	}
	if err != nil {
		return "", err
	}
	if err := item.Unmarshal(&idx); err != nil {
		return "", err
	}
	return idx.WorkspaceID, nil
}

func (s *Service) aliasInUse(ctx context.Context, alias string) (bool, error) {
	idx := entity.AliasIndex{Alias: alias}
	return s.st.Exists(ctx, idx.RecordKey())
}

func (s *Service) get(ctx context.Context, workspaceID string) (*entity.Workspace, error) {
	item, err := s.st.Get(ctx, store.Key{
		PK: shard.WorkspacePK(workspaceID),
		SK: shard.WorkspaceSK,
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrWorkspaceNotFound
	}
	if err != nil {
		return nil, err
	}

	var ws entity.Workspace
	if err := item.Unmarshal(&ws); err != nil {
		return nil, fmt.Errorf("unmarshal workspace: %w", err)
	}
	return &ws, nil
}
