package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const boardChannelPrefix = "board:events:" // board:events:{board_id}

type Type string

const (
	TaskCreated      Type = "task.created"
	TaskUpdated      Type = "task.updated"
	TaskMoved        Type = "task.moved"
	TaskDeleted      Type = "task.deleted"
	ColumnCreated    Type = "column.created"
	ColumnUpdated    Type = "column.updated"
	ColumnDeleted    Type = "column.deleted"
	ColumnsReordered Type = "columns.reordered"
	BoardUpdated     Type = "board.updated"
	CommentAdded     Type = "comment.added"
)

type BoardEvent struct {
	Type     Type           `json:"type"`
	BoardID  string         `json:"boardId"`
	TaskID   string         `json:"taskId,omitempty"`
	ColumnID string         `json:"columnId,omitempty"`
	ActorID  string         `json:"actorId,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
	At       time.Time      `json:"at"`
}

// Publisher is what the services depend on. Publishing happens after commit
// and is best effort: clients re-read the board on reconnect.
type Publisher interface {
	Publish(ctx context.Context, ev BoardEvent)
}

// Bus fans board events out through redis pub/sub so every API replica's
// stream subscribers see them.
type Bus struct {
	client *redis.Client
	logger *zap.Logger
}

func NewBus(client *redis.Client, logger *zap.Logger) *Bus {
	return &Bus{client: client, logger: logger}
}

func (b *Bus) Publish(ctx context.Context, ev BoardEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		b.logger.Warn("marshal board event", zap.Error(err))
		return
	}
	if err := b.client.Publish(ctx, channel(ev.BoardID), data).Err(); err != nil {
		b.logger.Warn("publish board event",
			zap.String("board_id", ev.BoardID),
			zap.String("type", string(ev.Type)),
			zap.Error(err),
		)
	}
}

// Subscribe returns a channel of events for one board. The channel is closed
// when ctx ends or the returned cancel func is called.
func (b *Bus) Subscribe(ctx context.Context, boardID string) (<-chan BoardEvent, func(), error) {
	sub := b.client.Subscribe(ctx, channel(boardID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe board events: %w", err)
	}

	out := make(chan BoardEvent, 16)
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev BoardEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.logger.Warn("decode board event", zap.Error(err))
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, cancel, nil
}

// channel names the board's topic after the canonical form of its id, so
// publishers and subscribers agree however the id was spelled.
func channel(boardID string) string {
	return boardChannelPrefix + CanonicalID(boardID)
}

// CanonicalID returns the lower-case hyphenated form of a uuid. Other values
// are only trimmed and lower-cased.
func CanonicalID(id string) string {
	id = strings.TrimSpace(id)
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return strings.ToLower(id)
}

// Nop discards events. Used when redis is not configured.
type Nop struct{}

func (Nop) Publish(context.Context, BoardEvent) {}
