package repo

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	domain "github.com/masakoww/jambistore-app-sub000/internal/entity"
	"github.com/masakoww/jambistore-app-sub000/internal/usecase"
)

// AuditRepo is insert/select only. There is deliberately no update or delete.
type AuditRepo struct{ q dbtx }

func (r *AuditRepo) Append(ctx context.Context, e domain.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	payload, err := encodeMap(e.Payload)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `
INSERT INTO order_audit (id,order_id,event,actor_type,actor_id,payload,created_at)
VALUES (?,?,?,?,?,?,?)`,
		e.ID, e.OrderID, e.Event, string(e.Actor.Type), e.Actor.ID, payload, e.Timestamp.UTC())
	return err
}

func (r *AuditRepo) ListByOrder(ctx context.Context, orderID string) ([]domain.AuditEntry, error) {
	rows, err := r.q.QueryContext(ctx, `
SELECT id,order_id,event,actor_type,actor_id,payload,created_at
FROM order_audit WHERE order_id=? ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var (
			e         domain.AuditEntry
			actorType string
			payload   sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Event, &actorType, &e.Actor.ID, &payload, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Actor.Type = domain.ActorType(actorType)
		if e.Payload, err = decodeMap(payload.String); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ usecase.AuditLog = (*AuditRepo)(nil)
