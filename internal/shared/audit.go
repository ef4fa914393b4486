package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Audited entities. Every order transition, work order action, and stock
// posting leaves a trail entry under one of these.
const (
	EntityOrder    = "manufacturing_order"
	EntityMovement = "stock_movement"
)

// AuditLog is one append-only trail entry. Meta carries the
// transition-specific payload (order number, quantities, statuses) as jsonb.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditLogger appends entries to audit_logs. Rows are never updated or
// deleted.
type AuditLogger struct {
	pool *pgxpool.Pool
}

func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists one entry. An entry without action, entity, and entity id
// is rejected rather than silently written half empty.
func (l *AuditLogger) Record(ctx context.Context, entry AuditLog) error {
	if l == nil || l.pool == nil {
		return errors.New("shared: audit logger not configured")
	}
	if entry.Action == "" || entry.Entity == "" || entry.EntityID == "" {
		return fmt.Errorf("shared: incomplete audit entry: action=%q entity=%q id=%q", entry.Action, entry.Entity, entry.EntityID)
	}

	var meta []byte
	if entry.Meta != nil {
		var err error
		if meta, err = json.Marshal(entry.Meta); err != nil {
			return fmt.Errorf("shared: marshal audit meta: %w", err)
		}
	}
	at := entry.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	_, err := l.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6)`, entry.ActorID, entry.Action, entry.Entity, entry.EntityID, meta, at)
	return err
}
