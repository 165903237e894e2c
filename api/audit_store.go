package api

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmcleod/sessiongate/storage"
)

// AuditBucket is the storage bucket holding persisted audit entries.
const AuditBucket = "audit"

// AuditEntry is a persisted audit event.
type AuditEntry struct {
	ID            string    `json:"id"`
	Event         string    `json:"event"`
	MemberID      string    `json:"member_id,omitempty"`
	LoginID       string    `json:"login_id,omitempty"`
	ClientIP      string    `json:"client_ip,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// AuditFilter narrows ListAuditEntries.
type AuditFilter struct {
	// MemberID keeps only entries for this member. Empty keeps all.
	MemberID string
	// Limit caps the number of entries returned. Zero means no cap.
	Limit int
}

type auditStore struct {
	repo storage.Repository
}

func newAuditStore(repo storage.Repository) *auditStore {
	return &auditStore{repo: repo}
}

func (s *auditStore) append(ctx context.Context, rec auditRecord) error {
	id, err := ulid.New(ulid.Timestamp(rec.Time), rand.Reader)
	if err != nil {
		return fmt.Errorf("generating audit id: %w", err)
	}
	entry := AuditEntry{
		ID:            id.String(),
		Event:         string(rec.Event),
		MemberID:      rec.MemberID,
		LoginID:       rec.LoginID,
		ClientIP:      rec.ClientIP,
		Reason:        rec.Reason,
		CorrelationID: rec.CorrelationID,
		CreatedAt:     rec.Time,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	// The entry outlives the request.
	return s.repo.PutIfAbsent(context.WithoutCancel(ctx), AuditBucket, entry.ID, data)
}

// ListAuditEntries returns persisted audit entries, newest first.
func ListAuditEntries(ctx context.Context, repo storage.Repository, f AuditFilter) ([]AuditEntry, error) {
	ids, err := repo.List(ctx, AuditBucket)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	slices.Reverse(ids)

	entries := make([]AuditEntry, 0)
	for _, id := range ids {
		if f.Limit > 0 && len(entries) >= f.Limit {
			break
		}
		data, err := repo.Get(ctx, AuditBucket, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var entry AuditEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		if f.MemberID != "" && entry.MemberID != f.MemberID {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
