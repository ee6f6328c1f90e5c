// Package entity defines the persisted record shapes of the lattice table
// and their key layout. Every type implements store.Record; attributevalue
// struct tags define the wire shape, which round-trips loss-free for the
// shapes external consumers read back (automations, execution logs, point
// shards).
package entity
