// Package stream processes DynamoDB stream events for the lattice table:
// converging a tombstoned workspace's secondary records and invalidating
// automation rule caches. Designed to run as an AWS Lambda handler; the
// table's indexes are only eventually consistent with their primaries, and
// this handler is the reconciliation path that closes the gap.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/nimbusiot/lattice/entity"
	"github.com/nimbusiot/lattice/internal/shard"
	"github.com/nimbusiot/lattice/store"
)

// Invalidator receives rule-cache invalidations for a workspace. Satisfied
// by the automation engine.
type Invalidator interface {
	Invalidate(workspaceID string)
}

// Handler processes lattice table stream events.
type Handler struct {
	store       *store.Store
	invalidator Invalidator
	logger      *slog.Logger
}

// NewHandler creates a stream handler. invalidator may be nil when no
// automation engine runs in this process.
func NewHandler(s *store.Store, invalidator Invalidator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:       s,
		invalidator: invalidator,
		logger:      logger,
	}
}

// Handle processes a batch of stream records. An error makes the batch
// retry and eventually dead-letter.
func (h *Handler) Handle(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process stream record",
				"eventID", record.EventID,
				"error", err,
			)
			return err
		}
	}
	return nil
}

func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	entityType := getStringAttr(record.Change.NewImage, "entity_type")

	// Any write to an automation rule invalidates its workspace's cache.
	if entityType == "automation" || (record.EventName == "REMOVE" && isAutomationSK(record)) {
		if h.invalidator != nil {
			workspaceID := getStringAttr(record.Change.NewImage, "workspace_id")
			if workspaceID == "" {
				workspaceID = getStringAttr(record.Change.OldImage, "workspace_id")
			}
			if workspaceID != "" {
				h.invalidator.Invalidate(workspaceID)
			}
		}
	}

	if entityType != "workspace" || record.EventName != "MODIFY" {
		return nil
	}

	oldDeleted := getNumberAttr(record.Change.OldImage, "deleted_at")
	newDeleted := getNumberAttr(record.Change.NewImage, "deleted_at")

	// Only a fresh tombstone cascades.
	if oldDeleted != 0 || newDeleted == 0 {
		return nil
	}

	workspaceID := getStringAttr(record.Change.NewImage, "workspace_id")
	alias := getStringAttr(record.Change.NewImage, "alias")

	h.logger.Info("cascading workspace tombstone",
		"workspace", workspaceID,
		"deletedAt", newDeleted,
	)

	return h.cascade(ctx, workspaceID, alias)
}

// cascade tombstones the workspace's secondary records: the alias index and
// every device, membership, and automation in its partition. Already
// tombstoned records are no-ops, so replays are safe.
func (h *Handler) cascade(ctx context.Context, workspaceID, alias string) error {
	if alias != "" {
		idx := entity.AliasIndex{Alias: alias}
		key := idx.RecordKey()
		if err := h.store.SoftDelete(ctx, key); err != nil {
			h.logger.Warn("failed to tombstone alias index",
				"workspace", workspaceID,
				"error", err,
			)
		}
	}

	items, err := h.store.QueryByPartition(ctx, shard.WorkspacePK(workspaceID))
	if err != nil {
		return fmt.Errorf("list workspace records: %w", err)
	}

	cascaded := 0
	for _, item := range items {
		if item.Deleted() || item.Key.SK == shard.WorkspaceSK {
			continue
		}
		switch {
		case strings.HasPrefix(item.Key.SK, "device#"),
			strings.HasPrefix(item.Key.SK, "member#"),
			strings.HasPrefix(item.Key.SK, "automation#"):
			if err := h.store.SoftDelete(ctx, item.Key); err != nil {
				h.logger.Warn("failed to tombstone child record",
					"workspace", workspaceID,
					"sk", item.Key.SK,
					"error", err,
				)
				continue
			}
			cascaded++
		}
	}

	h.logger.Info("workspace cascade completed",
		"workspace", workspaceID,
		"recordsTombstoned", cascaded,
	)
	return nil
}

func isAutomationSK(record events.DynamoDBEventRecord) bool {
	if sk, ok := record.Change.Keys["sk"]; ok {
		return strings.HasPrefix(sk.String(), "automation#")
	}
	return false
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok {
		return v.String()
	}
	return ""
}

// getNumberAttr extracts a number attribute from a DynamoDB stream image.
func getNumberAttr(image map[string]events.DynamoDBAttributeValue, key string) int64 {
	if v, ok := image[key]; ok {
		if v.DataType() == events.DataTypeNumber {
			n, _ := strconv.ParseInt(v.Number(), 10, 64)
			return n
		}
	}
	return 0
}
