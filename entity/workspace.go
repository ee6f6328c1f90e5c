package entity

import (
	"github.com/nimbusiot/lattice/internal/shard"
	"github.com/nimbusiot/lattice/store"
)

// Workspace is an isolated tenant account.
type Workspace struct {
	WorkspaceID string `dynamodbav:"workspace_id" json:"workspaceId"`
	Name        string `dynamodbav:"name" json:"name"`
	Alias       string `dynamodbav:"alias" json:"alias"`
	OwnerID     string `dynamodbav:"owner_id" json:"ownerId"`
	Plan        string `dynamodbav:"plan,omitempty" json:"plan,omitempty"`
	CreatedAt   string `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt   string `dynamodbav:"updated_at" json:"updatedAt"`
}

func (w Workspace) RecordKey() store.Key {
	return store.Key{
		PK: shard.WorkspacePK(w.WorkspaceID),
		SK: shard.WorkspaceSK,
	}
}

func (w Workspace) EntityType() string { return "workspace" }

// AliasIndex is the secondary index record mapping an alias to its
// workspace. Its tombstone state mirrors the workspace's, best-effort.
type AliasIndex struct {
	Alias       string `dynamodbav:"alias" json:"alias"`
	WorkspaceID string `dynamodbav:"workspace_id" json:"workspaceId"`
	CreatedAt   string `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt   string `dynamodbav:"updated_at" json:"updatedAt"`
}

func (a AliasIndex) RecordKey() store.Key {
	return store.Key{PK: shard.AliasPK(a.Alias), SK: shard.IndexSK}
}

func (a AliasIndex) EntityType() string { return "alias_index" }

// Membership links a user to a workspace with a role.
type Membership struct {
	WorkspaceID string `dynamodbav:"workspace_id" json:"workspaceId"`
	UserID      string `dynamodbav:"user_id" json:"userId"`
	Role        string `dynamodbav:"role" json:"role"`
	CreatedAt   string `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt   string `dynamodbav:"updated_at" json:"updatedAt"`
}

func (m Membership) RecordKey() store.Key {
	return store.Key{
		PK: shard.WorkspacePK(m.WorkspaceID),
		SK: shard.MemberSK(m.UserID),
	}
}

func (m Membership) EntityType() string { return "membership" }

// EmailIndex maps a user's email to their user ID.
type EmailIndex struct {
	Email     string `dynamodbav:"email" json:"email"`
	UserID    string `dynamodbav:"user_id" json:"userId"`
	CreatedAt string `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt string `dynamodbav:"updated_at" json:"updatedAt"`
}

func (e EmailIndex) RecordKey() store.Key {
	return store.Key{PK: shard.EmailPK(e.Email), SK: shard.IndexSK}
}

func (e EmailIndex) EntityType() string { return "email_index" }

// APIKeyIndex maps an API key hash to the workspace it authenticates.
// RevokedAt mirrors revocation of the key, best-effort.
type APIKeyIndex struct {
	KeyHash     string `dynamodbav:"key_hash" json:"keyHash"`
	WorkspaceID string `dynamodbav:"workspace_id" json:"workspaceId"`
	RevokedAt   int64  `dynamodbav:"revoked_at,omitempty" json:"revokedAt,omitempty"`
	CreatedAt   string `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt   string `dynamodbav:"updated_at" json:"updatedAt"`
}

func (k APIKeyIndex) RecordKey() store.Key {
	return store.Key{PK: shard.APIKeyPK(k.KeyHash), SK: shard.IndexSK}
}

func (k APIKeyIndex) EntityType() string { return "apikey_index" }

// AuthContext is the resolved caller identity, provided by an external
// resolver. The core performs no authorization decisions of its own.
type AuthContext struct {
	Type        string `json:"type"`
	WorkspaceID string `json:"workspaceId,omitempty"`
	Role        string `json:"role,omitempty"`
}

// PlanLimits maps a tenant's plan to its operational limits. Only TTLDays
// is consumed by the core, to compute point-history expiry.
type PlanLimits struct {
	RequestsPerMinute int `json:"requestsPerMinute"`
	TTLDays           int `json:"ttlDays"`
}

// PlanResolver supplies a workspace's plan limits.
type PlanResolver interface {
	Limits(workspaceID string) PlanLimits
}
