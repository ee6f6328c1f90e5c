// Package device owns one live session per (workspace, device) pair: its
// connection lifecycle, telemetry ingestion, heartbeat, and time-sharded
// point history. All operations for the same device serialize through its
// actor key; no two ingestion events for one device interleave.
package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nimbusiot/lattice/actor"
	"github.com/nimbusiot/lattice/entity"
	"github.com/nimbusiot/lattice/internal/shard"
	"github.com/nimbusiot/lattice/notify"
	"github.com/nimbusiot/lattice/store"
)

// ErrDeviceNotFound is returned when the addressed device is not registered.
var ErrDeviceNotFound = errors.New("lattice: device not found")

// ConnState is the session lifecycle state.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
)

// Snapshot is the actor-local device state. It lives only as long as the
// actor instance and is rebuilt from the persisted device record on cold
// start.
type Snapshot struct {
	LastSeenAt  int64               `json:"lastSeenAt"`
	LastPayload map[string]any      `json:"lastPayload,omitempty"`
	Status      entity.DeviceStatus `json:"status"`
	Fields      map[string]any      `json:"fields,omitempty"`
}

// AutomationNotifier receives device events, fire-and-forget. Implementations
// must not block the caller on rule evaluation. Satisfied by the automation
// engine.
type AutomationNotifier interface {
	OnDeviceData(workspaceID, deviceID string, fields map[string]any)
	OnDeviceStatus(workspaceID, deviceID string, status entity.DeviceStatus)
}

// session is the per-device actor state. Only the device's mailbox touches
// it, except lastActivity which the websocket pong handler also bumps.
type session struct {
	snapshot Snapshot
	state    ConnState
	conn     Conn
	loaded   bool
	pointSeq int64

	lastActivity atomic.Int64
	stopBeat     chan struct{}
}

// Manager routes operations to per-device actors keyed workspaceId:deviceId.
type Manager struct {
	sys        *actor.System
	st         *store.Store
	automation AutomationNotifier
	dispatcher notify.Dispatcher
	plans      entity.PlanResolver
	config     Config
	logger     *slog.Logger
	now        func() time.Time

	mu sync.Mutex
	// sessions is pruned when a device disconnects; entries for devices
	// actively ingesting remain as the snapshot cache.
	sessions map[string]*session
}

// NewManager creates a device manager.
func NewManager(sys *actor.System, st *store.Store, automation AutomationNotifier, dispatcher notify.Dispatcher, plans entity.PlanResolver, config Config, logger *slog.Logger) *Manager {
	config.validate()
	if logger == nil {
		logger = slog.Default()
	}
	if dispatcher == nil {
		dispatcher = notify.Noop{}
	}
	return &Manager{
		sys:        sys,
		st:         st,
		automation: automation,
		dispatcher: dispatcher,
		plans:      plans,
		config:     config,
		logger:     logger,
		now:        time.Now,
		sessions:   make(map[string]*session),
	}
}

// SetNow overrides the time source. Tests only.
func (m *Manager) SetNow(now func() time.Time) { m.now = now }

func actorKey(workspaceID, deviceID string) string {
	return workspaceID + ":" + deviceID
}

// historyKey names the mailbox that serializes a device's point and shard
// writes, kept separate from the session mailbox so history I/O never
// blocks connection handling.
func historyKey(workspaceID, deviceID string) string {
	return actorKey(workspaceID, deviceID) + ":history"
}

func (m *Manager) session(key string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		s = &session{state: StateDisconnected}
		m.sessions[key] = s
	}
	return s
}

// dropSession evicts the per-device state entry so the map does not grow
// with every device ever touched. Called once a device is fully
// disconnected; the next operation rebuilds the snapshot from the
// persisted record, the same way a cold start does.
func (m *Manager) dropSession(key string, s *session) {
	m.mu.Lock()
	if m.sessions[key] == s {
		delete(m.sessions, key)
	}
	m.mu.Unlock()
}

// load rebuilds the snapshot from the persisted device record on first use.
func (m *Manager) load(ctx context.Context, s *session, workspaceID, deviceID string) (*entity.Device, error) {
	key := store.Key{PK: shard.WorkspacePK(workspaceID), SK: shard.DeviceSK(deviceID)}
	item, err := m.st.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, err
	}

	var dev entity.Device
	if err := item.Unmarshal(&dev); err != nil {
		return nil, fmt.Errorf("unmarshal device: %w", err)
	}

	if !s.loaded {
		s.snapshot = Snapshot{
			LastSeenAt: dev.LastSeenAt,
			Status:     dev.Status,
			Fields:     dev.LastData,
		}
		if s.snapshot.Status == "" {
			s.snapshot.Status = entity.StatusOffline
		}
		s.loaded = true
	}
	return &dev, nil
}

// persist mirrors the snapshot into the device record.
func (m *Manager) persist(ctx context.Context, dev *entity.Device, s *session) error {
	dev.Status = s.snapshot.Status
	dev.LastSeenAt = s.snapshot.LastSeenAt
	dev.LastData = s.snapshot.Fields
	return m.st.Put(ctx, *dev)
}

// Connect upgrades the device to a live session. Any previous session is
// closed first.
func (m *Manager) Connect(ctx context.Context, workspaceID, deviceID string, conn Conn) error {
	key := actorKey(workspaceID, deviceID)
	return m.sys.Do(ctx, key, func(ctx context.Context) error {
		s := m.session(key)
		s.state = StateConnecting

		dev, err := m.load(ctx, s, workspaceID, deviceID)
		if err != nil {
			s.state = StateDisconnected
			m.dropSession(key, s)
			return err
		}

		if s.conn != nil {
			s.conn.Close()
			m.stopHeartbeat(s)
		}

		now := m.now()
		s.conn = conn
		s.state = StateConnected
		s.snapshot.Status = entity.StatusOnline
		s.snapshot.LastSeenAt = now.UnixMilli()
		s.lastActivity.Store(now.UnixMilli())

		if err := m.persist(ctx, dev, s); err != nil {
			return fmt.Errorf("persist online status: %w", err)
		}

		m.automation.OnDeviceStatus(workspaceID, deviceID, entity.StatusOnline)
		m.startHeartbeat(key, s)

		actor.Detach(m.logger, "device-online-notification", func(ctx context.Context) error {
			return m.dispatcher.Dispatch(ctx, notify.Notification{
				WorkspaceID: workspaceID,
				Type:        "device_status",
				Severity:    notify.SeverityInfo,
				Title:       "Device online",
				Message:     fmt.Sprintf("Device %s is online", deviceID),
				Metadata:    map[string]any{"deviceId": deviceID, "status": "online"},
			})
		})
		return nil
	})
}

// Disconnect tears the session down and drives the offline (or error)
// transition. Safe to call for an already-disconnected device.
func (m *Manager) Disconnect(ctx context.Context, workspaceID, deviceID string, cause error) error {
	key := actorKey(workspaceID, deviceID)
	return m.sys.Do(ctx, key, func(ctx context.Context) error {
		s := m.session(key)
		if s.state == StateDisconnected {
			m.dropSession(key, s)
			return nil
		}

		dev, err := m.load(ctx, s, workspaceID, deviceID)
		if err != nil {
			return err
		}

		if s.conn != nil {
			s.conn.Close()
			s.conn = nil
		}
		m.stopHeartbeat(s)
		s.state = StateDisconnected

		status := entity.StatusOffline
		if cause != nil {
			status = entity.StatusError
		}
		s.snapshot.Status = status

		if err := m.persist(ctx, dev, s); err != nil {
			return fmt.Errorf("persist %s status: %w", status, err)
		}

		m.automation.OnDeviceStatus(workspaceID, deviceID, status)

		actor.Detach(m.logger, "device-offline-notification", func(ctx context.Context) error {
			return m.dispatcher.Dispatch(ctx, notify.Notification{
				WorkspaceID: workspaceID,
				Type:        "device_status",
				Severity:    notify.SeverityWarning,
				Title:       "Device " + string(status),
				Message:     fmt.Sprintf("Device %s is %s", deviceID, status),
				Metadata:    map[string]any{"deviceId": deviceID, "status": string(status)},
			})
		})
		m.dropSession(key, s)
		return nil
	})
}

// Ingest merges a telemetry payload into the snapshot, persists the device
// record, forwards the frame downstream, and records point history.
// Persistence failures propagate to the caller; history and notification
// side effects are detached and their errors discarded.
func (m *Manager) Ingest(ctx context.Context, workspaceID, deviceID string, payload map[string]any) error {
	key := actorKey(workspaceID, deviceID)
	return m.sys.Do(ctx, key, func(ctx context.Context) error {
		s := m.session(key)

		dev, err := m.load(ctx, s, workspaceID, deviceID)
		if err != nil {
			return err
		}

		now := m.now()
		s.snapshot.LastPayload = payload
		s.snapshot.LastSeenAt = now.UnixMilli()
		if s.snapshot.Fields == nil {
			s.snapshot.Fields = make(map[string]any, len(payload))
		}
		for k, v := range payload {
			s.snapshot.Fields[k] = v
		}
		s.lastActivity.Store(now.UnixMilli())

		if err := m.persist(ctx, dev, s); err != nil {
			return fmt.Errorf("persist ingest: %w", err)
		}

		if s.state == StateConnected && s.conn != nil {
			if err := s.conn.WriteFrame(map[string]any{"type": "data", "payload": payload}); err != nil {
				m.logger.Warn("forward frame failed", "device", key, "error", err)
			}
		}

		m.automation.OnDeviceData(workspaceID, deviceID, copyFields(s.snapshot.Fields))

		s.pointSeq++
		point := entity.Point{
			At:     now.UnixMilli(),
			Status: s.snapshot.Status,
			Fields: copyFields(payload),
		}
		seq := s.pointSeq
		m.writeHistory(workspaceID, deviceID, point, seq, now)
		return nil
	})
}

// writeHistory records the raw point and appends to the day shard. The
// write is fire-and-forget from the ingest path but runs on a dedicated
// per-device history mailbox: the shard append is a read-modify-write, and
// a free goroutine per ingest would let overlapping bursts clobber each
// other's appends.
func (m *Manager) writeHistory(workspaceID, deviceID string, point entity.Point, seq int64, now time.Time) {
	var expiresAt int64
	if m.plans != nil {
		if ttlDays := m.plans.Limits(workspaceID).TTLDays; ttlDays > 0 {
			expiresAt = now.AddDate(0, 0, ttlDays).Unix()
		}
	}

	m.sys.Post(historyKey(workspaceID, deviceID), func(ctx context.Context) error {
		raw := entity.PointRecord{
			WorkspaceID: workspaceID,
			DeviceID:    deviceID,
			Seq:         seq,
			At:          point.At,
			Status:      point.Status,
			Fields:      point.Fields,
			ExpiresAt:   expiresAt,
		}
		if err := m.st.Put(ctx, raw); err != nil {
			return fmt.Errorf("raw point: %w", err)
		}
		return m.appendShard(ctx, workspaceID, deviceID, point, expiresAt, now)
	})
}

// appendShard reads, appends to, and rewrites the day's point shard. Only
// the history mailbox calls it, so the read-modify-write never overlaps
// itself for a device.
func (m *Manager) appendShard(ctx context.Context, workspaceID, deviceID string, point entity.Point, expiresAt int64, now time.Time) error {
	day := now.UTC().Format(shard.DayLayout)
	ps := entity.PointShard{
		WorkspaceID: workspaceID,
		DeviceID:    deviceID,
		Shard:       day,
		ExpiresAt:   expiresAt,
	}

	item, err := m.st.Get(ctx, ps.RecordKey())
	if err == nil {
		if err := item.Unmarshal(&ps); err != nil {
			return fmt.Errorf("unmarshal shard: %w", err)
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	ps.Append(point)
	return m.st.Put(ctx, ps)
}

// Control merges one field into the snapshot, persists, and pushes a
// control frame downstream when connected.
func (m *Manager) Control(ctx context.Context, workspaceID, deviceID, field string, value any) error {
	key := actorKey(workspaceID, deviceID)
	return m.sys.Do(ctx, key, func(ctx context.Context) error {
		s := m.session(key)

		dev, err := m.load(ctx, s, workspaceID, deviceID)
		if err != nil {
			return err
		}

		if s.snapshot.Fields == nil {
			s.snapshot.Fields = make(map[string]any, 1)
		}
		s.snapshot.Fields[field] = value
		s.snapshot.LastSeenAt = m.now().UnixMilli()

		if err := m.persist(ctx, dev, s); err != nil {
			return fmt.Errorf("persist control: %w", err)
		}

		if s.state == StateConnected && s.conn != nil {
			if err := s.conn.WriteFrame(map[string]any{"type": "control", "field": field, "value": value}); err != nil {
				m.logger.Warn("control frame failed", "device", key, "error", err)
			}
		}
		return nil
	})
}

// Send pushes a server-originated frame to the device.
func (m *Manager) Send(ctx context.Context, workspaceID, deviceID string, payload any) error {
	key := actorKey(workspaceID, deviceID)
	return m.sys.Do(ctx, key, func(ctx context.Context) error {
		s := m.session(key)
		if s.state != StateConnected || s.conn == nil {
			return fmt.Errorf("lattice: device %s not connected", key)
		}
		return s.conn.WriteFrame(payload)
	})
}

// GetState returns a copy of the device's snapshot.
func (m *Manager) GetState(ctx context.Context, workspaceID, deviceID string) (Snapshot, error) {
	key := actorKey(workspaceID, deviceID)
	var snap Snapshot
	err := m.sys.Do(ctx, key, func(ctx context.Context) error {
		s := m.session(key)
		if _, err := m.load(ctx, s, workspaceID, deviceID); err != nil {
			return err
		}
		snap = s.snapshot
		snap.Fields = copyFields(s.snapshot.Fields)
		snap.LastPayload = copyFields(s.snapshot.LastPayload)
		return nil
	})
	return snap, err
}

// Touch records inbound activity (pong, transport-level traffic) for the
// liveness deadline. Safe to call from any goroutine.
func (m *Manager) Touch(workspaceID, deviceID string) {
	s := m.session(actorKey(workspaceID, deviceID))
	s.lastActivity.Store(m.now().UnixMilli())
}

// startHeartbeat arms the per-session heartbeat loop. Each tick serializes
// through the device's mailbox.
func (m *Manager) startHeartbeat(key string, s *session) {
	stop := make(chan struct{})
	s.stopBeat = stop

	go func() {
		t := time.NewTicker(m.config.HeartbeatInterval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				m.sys.Post(key, func(ctx context.Context) error {
					m.heartbeat(ctx, key, s)
					return nil
				})
			}
		}
	}()
}

func (m *Manager) stopHeartbeat(s *session) {
	if s.stopBeat != nil {
		close(s.stopBeat)
		s.stopBeat = nil
	}
}

// heartbeat sends a ping and enforces the liveness deadline. Ping failures
// are swallowed: the connection is assumed already dead and the close
// handler drives the offline transition. The liveness deadline covers the
// silently-hung case where no close event ever arrives.
func (m *Manager) heartbeat(_ context.Context, key string, s *session) {
	if s.state != StateConnected || s.conn == nil {
		return
	}

	idle := m.now().UnixMilli() - s.lastActivity.Load()
	if idle > m.config.LivenessTimeout.Milliseconds() {
		m.logger.Warn("liveness deadline exceeded, closing session", "device", key, "idleMs", idle)
		workspaceID, deviceID, ok := splitKey(key)
		s.conn.Close()
		if ok {
			// Post rather than call: the disconnect must run as its own
			// serialized operation on this mailbox.
			m.sys.Post(key, func(ctx context.Context) error {
				return m.disconnectLocked(ctx, key, s, workspaceID, deviceID)
			})
		}
		return
	}

	if err := s.conn.Ping(); err != nil {
		m.logger.Debug("heartbeat ping failed", "device", key, "error", err)
	}
}

// disconnectLocked is Disconnect's body for callers already inside the
// device's mailbox.
func (m *Manager) disconnectLocked(ctx context.Context, key string, s *session, workspaceID, deviceID string) error {
	if s.state == StateDisconnected {
		return nil
	}

	dev, err := m.load(ctx, s, workspaceID, deviceID)
	if err != nil {
		return err
	}

	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	m.stopHeartbeat(s)
	s.state = StateDisconnected
	s.snapshot.Status = entity.StatusOffline

	if err := m.persist(ctx, dev, s); err != nil {
		return fmt.Errorf("persist offline status: %w", err)
	}
	m.automation.OnDeviceStatus(workspaceID, deviceID, entity.StatusOffline)
	m.dropSession(key, s)
	return nil
}

func splitKey(key string) (workspaceID, deviceID string, ok bool) {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return key[:i], key[i+1:], true
		}
	}
	return "", "", false
}

func copyFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	dup := make(map[string]any, len(fields))
	for k, v := range fields {
		dup[k] = v
	}
	return dup
}
