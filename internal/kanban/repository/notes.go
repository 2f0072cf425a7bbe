package repository

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"github.com/staffboard/staffboard-backend/internal/kanban/domain"
	"github.com/staffboard/staffboard-backend/internal/notify"
	"github.com/staffboard/staffboard-backend/internal/storage/postgres"
)

type person struct {
	ID    string
	Email string
	Name  string
}

// lookupPeople resolves approved users by id. Unknown or inactive ids are
// skipped.
func lookupPeople(ctx context.Context, q postgres.Queryer, ids []string) (map[string]person, error) {
	out := make(map[string]person, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := q.QueryContext(ctx, `
select id::text, email, name
from users
where id::text = any($1) and account_status = 'approved'`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("lookup recipients: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p person
		if err := rows.Scan(&p.ID, &p.Email, &p.Name); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// taskNote is the common shape of task notifications.
type taskNote struct {
	Kind       notify.Kind
	Task       *domain.Task
	BoardTitle string
	ActorID    string
	Recipients []string
	Extra      map[string]any
}

// enqueueTaskNotes writes one outbox row per recipient other than the actor.
func enqueueTaskNotes(ctx context.Context, q postgres.Queryer, n taskNote) error {
	ids := make([]string, 0, len(n.Recipients)+1)
	for _, id := range n.Recipients {
		if id != n.ActorID {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	people, err := lookupPeople(ctx, q, append(ids, n.ActorID))
	if err != nil {
		return err
	}
	actorName := "Someone"
	if a, ok := people[n.ActorID]; ok {
		actorName = a.Name
	}

	notes := make([]notify.Notification, 0, len(ids))
	for _, id := range ids {
		p, ok := people[id]
		if !ok {
			continue
		}
		payload := map[string]any{
			"name":        p.Name,
			"actor_name":  actorName,
			"task_id":     n.Task.ID,
			"task_title":  n.Task.Title,
			"board_id":    n.Task.BoardID,
			"board_title": n.BoardTitle,
		}
		for k, v := range n.Extra {
			payload[k] = v
		}
		notes = append(notes, notify.Notification{Kind: n.Kind, Recipient: p.Email, Payload: payload})
	}
	return notify.Enqueue(ctx, q, notes...)
}
