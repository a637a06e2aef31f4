package audit

import (
	"context"
	"database/sql"
)

// PGSink appends entries to the audit_logs table. The table is insert-only;
// nothing in this codebase updates or deletes rows from it.
type PGSink struct {
	db *sql.DB
}

var _ Sink = (*PGSink)(nil)

func NewPGSink(db *sql.DB) *PGSink {
	return &PGSink{db: db}
}

func (s *PGSink) Append(ctx context.Context, e *Entry) error {
	_, err := s.db.ExecContext(ctx, `
		insert into audit_logs(id, company_id, user_id, action, entity_type, entity_id,
			old_values, new_values, ip_address, user_agent, created_at)
		values($1,$2,$3,$4,$5,nullif($6,''),$7,$8,$9,$10,$11)
	`, e.ID, e.CompanyID, e.UserID, e.Action, e.EntityType, e.EntityID,
		nullableJSON(e.OldValues), nullableJSON(e.NewValues), e.IPAddress, e.UserAgent, e.CreatedAt)
	return err
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
