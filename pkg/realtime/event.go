// Package realtime delivers asynchronous notifications of remote mutations
// into the operation managers. Each entity table gets one feed; the
// coordinator drains the feeds and hands each event to the owning manager's
// reconciliation entry point, which applies it with the same store primitives
// as local optimistic mutation.
package realtime

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/VishalT25/companion-sync/pkg/models"
)

// Action tags what a change event carries.
type Action string

const (
	// ActionInsert carries a single canonical record to upsert.
	ActionInsert Action = "INSERT"
	// ActionUpdate carries a single canonical record to upsert.
	ActionUpdate Action = "UPDATE"
	// ActionDelete carries the identifier of a removed record.
	ActionDelete Action = "DELETE"
	// ActionSync carries a full replacement set, emitted after (re)connect.
	ActionSync Action = "SYNC"
)

// Event is one decoded change notification.
type Event[T models.Record] struct {
	Table  string
	Action Action

	// Record is set for ActionInsert and ActionUpdate.
	Record T
	// Records is set for ActionSync.
	Records []T
	// ID is set for ActionDelete.
	ID string
}

// decodeRecord converts a live notification payload into a typed record. The
// SDK surfaces payloads as map[string]any with RecordID values inside; a CBOR
// round trip puts them through the typed-ID unmarshalers.
func decodeRecord[T models.Record](payload any) (T, error) {
	var rec T
	raw, err := cbor.Marshal(payload)
	if err != nil {
		return rec, fmt.Errorf("failed to re-encode notification payload: %w", err)
	}
	if err := cbor.Unmarshal(raw, &rec); err != nil {
		return rec, fmt.Errorf("failed to decode notification payload: %w", err)
	}
	return rec, nil
}
