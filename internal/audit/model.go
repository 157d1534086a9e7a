// Package audit keeps a hash-chained, append-only record of every accepted
// workflow operation. Entries are fed from the event bus, never written
// directly by handlers.
package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/medwatch/platform/internal/shared/types"
)

// Entry is one immutable audit record. Hash covers the entry's own
// content plus PrevHash, which links it to its predecessor.
type Entry struct {
	ID       types.ID `json:"id"`
	Sequence int64    `json:"sequence"`
	Hash     string   `json:"hash"`
	PrevHash string   `json:"prev_hash,omitempty"`

	ReportID   types.ID  `json:"report_id"`
	OccurredAt time.Time `json:"occurred_at"`

	ActorID   types.ID `json:"actor_id"`
	ActorRole string   `json:"actor_role"`

	Operation  string `json:"operation"`
	FromStatus string `json:"from_status,omitempty"`
	ToStatus   string `json:"to_status,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// NewEntry creates an entry and seals it against prevHash.
func NewEntry(reportID, actorID types.ID, actorRole, operation, fromStatus, toStatus, reason, prevHash string) *Entry {
	e := &Entry{
		ID: types.NewID(),
		// Truncate to microseconds for PostgreSQL round-trip stability
		OccurredAt: time.Now().UTC().Truncate(time.Microsecond),
		PrevHash:   prevHash,
		ReportID:   reportID,
		ActorID:    actorID,
		ActorRole:  actorRole,
		Operation:  operation,
		FromStatus: fromStatus,
		ToStatus:   toStatus,
		Reason:     reason,
	}
	e.Hash = e.computeHash()
	return e
}

// computeHash hashes the canonical JSON of the hash-covered fields.
// Timestamps are always rendered in UTC so verification is timezone-proof.
func (e *Entry) computeHash() string {
	data := map[string]any{
		"id":          e.ID,
		"prev_hash":   e.PrevHash,
		"report_id":   e.ReportID,
		"occurred_at": e.OccurredAt.UTC().Format(time.RFC3339Nano),
		"actor_id":    e.ActorID,
		"actor_role":  e.ActorRole,
		"operation":   e.Operation,
	}
	if e.FromStatus != "" {
		data["from_status"] = e.FromStatus
	}
	if e.ToStatus != "" {
		data["to_status"] = e.ToStatus
	}
	if e.Reason != "" {
		data["reason"] = e.Reason
	}

	jsonData, _ := canonicalJSON(data)
	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:])
}

// VerifyHash checks the stored hash against the entry's content.
func (e *Entry) VerifyHash() bool {
	return e.Hash == e.computeHash()
}

// ComputeHash returns the correct hash for the entry's current content.
func (e *Entry) ComputeHash() string {
	return e.computeHash()
}

// ListFilter narrows audit listings.
type ListFilter struct {
	ReportID  *types.ID  `json:"report_id,omitempty"`
	ActorID   *types.ID  `json:"actor_id,omitempty"`
	Operation string     `json:"operation,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Limit     int        `json:"limit,omitempty"`
	Offset    int        `json:"offset,omitempty"`
}

// canonicalJSON produces deterministic JSON with sorted map keys. Go maps
// iterate in random order and PostgreSQL JSONB may reorder keys, so the
// hash input has to be normalized.
func canonicalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}

	return canonicalMarshal(parsed)
}

func canonicalMarshal(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyBytes, _ := json.Marshal(k)
			buf.Write(keyBytes)
			buf.WriteByte(':')
			valBytes, err := canonicalMarshal(val[k])
			if err != nil {
				return nil, err
			}
			buf.Write(valBytes)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil

	case []any:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			itemBytes, err := canonicalMarshal(item)
			if err != nil {
				return nil, err
			}
			buf.Write(itemBytes)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil

	default:
		return json.Marshal(val)
	}
}
