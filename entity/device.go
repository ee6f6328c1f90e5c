package entity

import (
	"github.com/nimbusiot/lattice/internal/shard"
	"github.com/nimbusiot/lattice/store"
)

// DeviceStatus is a device's connectivity status.
type DeviceStatus string

const (
	StatusOnline  DeviceStatus = "online"
	StatusOffline DeviceStatus = "offline"
	StatusError   DeviceStatus = "error"
)

// FieldType describes the declared type of a telemetry field.
type FieldType string

const (
	FieldNumber  FieldType = "number"
	FieldString  FieldType = "string"
	FieldBoolean FieldType = "boolean"
	FieldJSON    FieldType = "json"
)

// FieldMapping is a typed descriptor for one telemetry field.
type FieldMapping struct {
	Name string    `dynamodbav:"name" json:"name"`
	Type FieldType `dynamodbav:"type" json:"type"`
	Min  *float64  `dynamodbav:"min,omitempty" json:"min,omitempty"`
	Max  *float64  `dynamodbav:"max,omitempty" json:"max,omitempty"`
}

// Device is a registered device owned by a workspace.
type Device struct {
	WorkspaceID   string         `dynamodbav:"workspace_id" json:"workspaceId"`
	DeviceID      string         `dynamodbav:"device_id" json:"deviceId"`
	Name          string         `dynamodbav:"name" json:"name"`
	Status        DeviceStatus   `dynamodbav:"status" json:"status"`
	LastSeenAt    int64          `dynamodbav:"last_seen_at" json:"lastSeenAt"`
	LastData      map[string]any `dynamodbav:"last_data,omitempty" json:"lastData,omitempty"`
	FieldMappings []FieldMapping `dynamodbav:"field_mappings,omitempty" json:"fieldMappings,omitempty"`
	CreatedAt     string         `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt     string         `dynamodbav:"updated_at" json:"updatedAt"`
}

func (d Device) RecordKey() store.Key {
	return store.Key{
		PK: shard.WorkspacePK(d.WorkspaceID),
		SK: shard.DeviceSK(d.DeviceID),
	}
}

func (d Device) EntityType() string { return "device" }
