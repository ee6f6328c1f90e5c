// Package shard builds partition and sort keys for the lattice table.
package shard

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// DayLayout is the calendar-day format used for point-history shards.
const DayLayout = "2006-01-02"

// WorkspacePK returns the partition key owning a workspace's records.
func WorkspacePK(workspaceID string) string {
	return "ws#" + workspaceID
}

// WorkspaceSK is the sort key of the workspace record itself.
const WorkspaceSK = "meta"

// DeviceSK returns the sort key of a device record.
func DeviceSK(deviceID string) string {
	return "device#" + deviceID
}

// DevicePK returns the partition key owning one device's telemetry records.
func DevicePK(workspaceID, deviceID string) string {
	return fmt.Sprintf("ws#%s#device#%s", workspaceID, deviceID)
}

// PointShardSK returns the sort key of the day shard holding a device's points.
func PointShardSK(day time.Time) string {
	return "shard#" + day.UTC().Format(DayLayout)
}

// PointSK returns the sort key of a raw point record. Nanosecond timestamps
// keep points from the same millisecond distinct; seq breaks remaining ties.
func PointSK(at time.Time, seq int64) string {
	return fmt.Sprintf("point#%020d#%d", at.UnixNano(), seq)
}

// AutomationSK returns the sort key of an automation rule record.
func AutomationSK(automationID string) string {
	return "automation#" + automationID
}

// AutomationLogSK returns the sort key of an execution log record. Keys sort
// chronologically so range queries return logs in execution order.
func AutomationLogSK(at time.Time, logID string) string {
	return fmt.Sprintf("autolog#%020d#%s", at.UnixNano(), logID)
}

// AutomationStatsSK returns the sort key of an automation's rolling stats.
func AutomationStatsSK(automationID string) string {
	return "autostats#" + automationID
}

// MemberSK returns the sort key of a workspace membership record.
func MemberSK(userID string) string {
	return "member#" + userID
}

// AliasPK computes a hash-distributed partition key for an alias index
// record. Hashing spreads index records across partitions so a popular
// prefix cannot create a hot partition.
func AliasPK(alias string) string {
	return "alias#" + indexHash("alias", alias)
}

// EmailPK computes a hash-distributed partition key for an email index record.
func EmailPK(email string) string {
	return "email#" + indexHash("email", email)
}

// APIKeyPK computes a hash-distributed partition key for an API key hash
// index record.
func APIKeyPK(keyHash string) string {
	return "apikey#" + indexHash("apikey", keyHash)
}

// IndexSK is the sort key shared by all secondary index records.
const IndexSK = "index"

func indexHash(kind, value string) string {
	h := sha256.Sum256([]byte(kind + "#" + value))
	return hex.EncodeToString(h[:16])
}
