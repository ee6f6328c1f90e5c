package entity

import (
	"time"

	"github.com/nimbusiot/lattice/internal/shard"
	"github.com/nimbusiot/lattice/store"
)

// MaxShardPoints caps how many points a day shard holds. Appending past the
// cap evicts the oldest points first.
const MaxShardPoints = 10000

// Point is one telemetry sample.
type Point struct {
	At     int64          `dynamodbav:"at" json:"at"`
	Status DeviceStatus   `dynamodbav:"status" json:"status"`
	Fields map[string]any `dynamodbav:"fields,omitempty" json:"fields,omitempty"`
}

// PointShard is the append-only capped container of one device's points for
// one calendar day.
type PointShard struct {
	WorkspaceID string  `dynamodbav:"workspace_id" json:"workspaceId"`
	DeviceID    string  `dynamodbav:"device_id" json:"deviceId"`
	Shard       string  `dynamodbav:"shard" json:"shard"`
	Points      []Point `dynamodbav:"points" json:"points"`
	ExpiresAt   int64   `dynamodbav:"expires_at,omitempty" json:"expiresAt,omitempty"`
	CreatedAt   string  `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt   string  `dynamodbav:"updated_at" json:"updatedAt"`
}

func (p PointShard) RecordKey() store.Key {
	day, _ := time.Parse(shard.DayLayout, p.Shard)
	return store.Key{
		PK: shard.DevicePK(p.WorkspaceID, p.DeviceID),
		SK: shard.PointShardSK(day),
	}
}

func (p PointShard) EntityType() string { return "point_shard" }

// Append adds a point, evicting the oldest points when the cap is exceeded.
func (p *PointShard) Append(pt Point) {
	p.Points = append(p.Points, pt)
	if overflow := len(p.Points) - MaxShardPoints; overflow > 0 {
		p.Points = p.Points[overflow:]
	}
}

// PointRecord is the raw per-ingestion point, written alongside the day
// shard for fallback and audit reads.
type PointRecord struct {
	WorkspaceID string         `dynamodbav:"workspace_id" json:"workspaceId"`
	DeviceID    string         `dynamodbav:"device_id" json:"deviceId"`
	Seq         int64          `dynamodbav:"seq" json:"seq"`
	At          int64          `dynamodbav:"at" json:"at"`
	Status      DeviceStatus   `dynamodbav:"status" json:"status"`
	Fields      map[string]any `dynamodbav:"fields,omitempty" json:"fields,omitempty"`
	ExpiresAt   int64          `dynamodbav:"expires_at,omitempty" json:"expiresAt,omitempty"`
	CreatedAt   string         `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt   string         `dynamodbav:"updated_at" json:"updatedAt"`
}

func (p PointRecord) RecordKey() store.Key {
	return store.Key{
		PK: shard.DevicePK(p.WorkspaceID, p.DeviceID),
		SK: shard.PointSK(time.UnixMilli(p.At), p.Seq),
	}
}

func (p PointRecord) EntityType() string { return "point" }
