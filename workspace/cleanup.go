package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nimbusiot/lattice/actor"
	"github.com/nimbusiot/lattice/internal/shard"
	"github.com/nimbusiot/lattice/store"
)

// CleanupStatus is a cleanup run's two-phase progress.
type CleanupStatus struct {
	StartedAt   int64 `json:"startedAt"`
	CompletedAt int64 `json:"completedAt"`
}

// cleanupRun is per-workspace actor-local progress. It is not checkpointed
// per device: a crash mid-run restarts the whole deletion scan. Acceptable
// because hard deletes are idempotent; the cost is rescanned work.
type cleanupRun struct {
	status CleanupStatus
}

// Cleanup hard-deletes a removed workspace's telemetry history: every
// device's point records and day shards, then the workspace record itself.
// Start is idempotent and serialized per workspace; re-invoking after
// completion is a no-op, and a second Start during a run queues behind it
// and then no-ops.
type Cleanup struct {
	sys    *actor.System
	st     *store.Store
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	runs map[string]*cleanupRun
}

// NewCleanup creates the cleanup actor host.
func NewCleanup(sys *actor.System, st *store.Store, logger *slog.Logger) *Cleanup {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cleanup{
		sys:    sys,
		st:     st,
		logger: logger,
		now:    time.Now,
		runs:   make(map[string]*cleanupRun),
	}
}

func cleanupKey(workspaceID string) string { return "cleanup:" + workspaceID }

func (c *Cleanup) run(workspaceID string) *cleanupRun {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.runs[workspaceID]
	if !ok {
		r = &cleanupRun{}
		c.runs[workspaceID] = r
	}
	return r
}

// Start begins (or skips, when already completed) the cleanup run and
// returns the resulting status.
func (c *Cleanup) Start(ctx context.Context, workspaceID string) (CleanupStatus, error) {
	r := c.run(workspaceID)
	err := c.sys.Do(ctx, cleanupKey(workspaceID), func(ctx context.Context) error {
		c.mu.Lock()
		if r.status.CompletedAt != 0 {
			c.mu.Unlock()
			return nil
		}
		r.status.StartedAt = c.now().UnixMilli()
		c.mu.Unlock()

		if err := c.purge(ctx, workspaceID); err != nil {
			return err
		}

		c.mu.Lock()
		r.status.CompletedAt = c.now().UnixMilli()
		c.mu.Unlock()
		return nil
	})

	return c.Status(workspaceID), err
}

// Status reports the run's progress without entering the mailbox, so it
// stays readable while a run is in flight.
func (c *Cleanup) Status(workspaceID string) CleanupStatus {
	r := c.run(workspaceID)
	c.mu.Lock()
	defer c.mu.Unlock()
	return r.status
}

// purge walks the workspace's devices and hard-deletes their telemetry
// partitions, then the workspace record.
func (c *Cleanup) purge(ctx context.Context, workspaceID string) error {
	wsPK := shard.WorkspacePK(workspaceID)

	devices, err := c.st.QueryBySortPrefix(ctx, wsPK, "device#")
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}

	for _, dev := range devices {
		deviceID := strings.TrimPrefix(dev.Key.SK, "device#")
		if err := c.purgeDevice(ctx, workspaceID, deviceID); err != nil {
			return fmt.Errorf("purge device %s: %w", deviceID, err)
		}
	}

	if err := c.st.HardDelete(ctx, store.Key{PK: wsPK, SK: shard.WorkspaceSK}); err != nil {
		return fmt.Errorf("delete workspace record: %w", err)
	}

	c.logger.Info("workspace cleanup completed",
		"workspace", workspaceID,
		"devices", len(devices),
	)
	return nil
}

// purgeDevice hard-deletes everything in one device's telemetry partition:
// raw points and day shards.
func (c *Cleanup) purgeDevice(ctx context.Context, workspaceID, deviceID string) error {
	items, err := c.st.QueryByPartition(ctx, shard.DevicePK(workspaceID, deviceID))
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	keys := make([]store.Key, 0, len(items))
	for _, item := range items {
		keys = append(keys, item.Key)
	}
	return c.st.BatchHardDelete(ctx, keys)
}
