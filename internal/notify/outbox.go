package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/staffboard/staffboard-backend/internal/storage/postgres"
)

type Kind string

const (
	KindOTP                 Kind = "otp"
	KindPasswordReset       Kind = "password_reset"
	KindRegistrationPending Kind = "registration_pending"
	KindAccountApproved     Kind = "account_approved"
	KindAccountDeclined     Kind = "account_declined"
	KindAccountBlocked      Kind = "account_blocked"
	KindTaskAssigned        Kind = "task_assigned"
	KindTaskMoved           Kind = "task_moved"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// secretKey is the payload field holding a one-time code. It is removed from
// a row once the row stops being deliverable.
const secretKey = "code"

// carriesCode reports whether k mails a one-time code.
func (k Kind) carriesCode() bool {
	return k == KindOTP || k == KindPasswordReset
}

// Notification is one durable outbox row.
type Notification struct {
	ID            string         `json:"id"`
	Kind          Kind           `json:"kind"`
	Recipient     string         `json:"recipient"`
	Payload       map[string]any `json:"payload"`
	Status        Status         `json:"status"`
	Attempts      int            `json:"attempts"`
	LastError     string         `json:"last_error,omitempty"`
	NextAttemptAt time.Time      `json:"next_attempt_at"`
	CreatedAt     time.Time      `json:"created_at"`
	SentAt        *time.Time     `json:"sent_at,omitempty"`
}

// Enqueue writes notifications through q, which is normally the transaction
// carrying the state change they describe.
func Enqueue(ctx context.Context, q postgres.Queryer, ns ...Notification) error {
	const query = `
insert into notification_outbox (id, kind, recipient, payload)
values ($1, $2, $3, $4)`

	for _, n := range ns {
		if n.ID == "" {
			n.ID = uuid.New().String()
		}
		payload, err := json.Marshal(n.Payload)
		if err != nil {
			return fmt.Errorf("marshal notification payload: %w", err)
		}
		if _, err := q.ExecContext(ctx, query, n.ID, string(n.Kind), n.Recipient, payload); err != nil {
			return fmt.Errorf("enqueue notification: %w", err)
		}
	}
	return nil
}

// OutboxRepository claims and settles outbox rows for the dispatcher.
type OutboxRepository struct {
	db    *sql.DB
	lease time.Duration
}

func NewOutboxRepository(db *sql.DB) *OutboxRepository {
	return &OutboxRepository{db: db, lease: 2 * time.Minute}
}

func (r *OutboxRepository) Enqueue(ctx context.Context, ns ...Notification) error {
	return Enqueue(ctx, r.db, ns...)
}

// Claim locks up to limit due rows and pushes their next_attempt_at forward by
// the lease, so a concurrent worker skips them while this one sends.
func (r *OutboxRepository) Claim(ctx context.Context, limit int) ([]Notification, error) {
	const query = `
update notification_outbox o
set next_attempt_at = now() + $2::interval
from (
	select id from notification_outbox
	where status = 'pending' and next_attempt_at <= now()
	order by created_at
	limit $1
	for update skip locked
) due
where o.id = due.id
returning o.id, o.kind, o.recipient, o.payload, o.status, o.attempts, o.last_error, o.next_attempt_at, o.created_at`

	rows, err := r.db.QueryContext(ctx, query, limit, fmt.Sprintf("%d seconds", int(r.lease.Seconds())))
	if err != nil {
		return nil, fmt.Errorf("claim outbox: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var (
			n       Notification
			kind    string
			status  string
			payload []byte
		)
		if err := rows.Scan(&n.ID, &kind, &n.Recipient, &payload, &status, &n.Attempts, &n.LastError, &n.NextAttemptAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		n.Kind = Kind(kind)
		n.Status = Status(status)
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &n.Payload); err != nil {
				return nil, fmt.Errorf("decode outbox payload: %w", err)
			}
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id string) error {
	const query = `
update notification_outbox
set status = 'sent', attempts = attempts + 1, sent_at = now(), last_error = '', payload = payload - $2::text
where id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, secretKey); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return nil
}

// MarkFailed records a failed attempt. When final is true the row stops
// being retried and loses its one-time code.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id, lastError string, next time.Time, final bool) error {
	status := StatusPending
	if final {
		status = StatusFailed
	}
	const query = `
update notification_outbox
set status = $2, attempts = attempts + 1, last_error = $3, next_attempt_at = $4,
	payload = case when $2 = 'failed' then payload - $5::text else payload end
where id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, string(status), lastError, next, secretKey); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// Counts returns the number of rows per status.
func (r *OutboxRepository) Counts(ctx context.Context) (map[Status]int64, error) {
	rows, err := r.db.QueryContext(ctx, `select status, count(*) from notification_outbox group by status`)
	if err != nil {
		return nil, fmt.Errorf("count outbox: %w", err)
	}
	defer rows.Close()

	out := map[Status]int64{StatusPending: 0, StatusSent: 0, StatusFailed: 0}
	for rows.Next() {
		var (
			s string
			n int64
		)
		if err := rows.Scan(&s, &n); err != nil {
			return nil, fmt.Errorf("scan outbox count: %w", err)
		}
		out[Status(s)] = n
	}
	return out, rows.Err()
}

// PurgeSent deletes delivered rows older than the cutoff.
func (r *OutboxRepository) PurgeSent(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `delete from notification_outbox where status = 'sent' and sent_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purge outbox: %w", err)
	}
	return res.RowsAffected()
}
