package monitor

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/staffboard/staffboard-backend/internal/notify"
	"go.uber.org/zap"
)

type Table struct {
	Name      string `json:"name"`
	Rows      int64  `json:"rows"`
	SizeBytes int64  `json:"sizeBytes"`
}

type Database struct {
	SizeBytes int64   `json:"sizeBytes"`
	Tables    []Table `json:"tables"`
}

// Redis.UsedMemory is zero when the server does not report the memory section.
type Redis struct {
	UsedMemory      int64  `json:"usedMemory"`
	UsedMemoryHuman string `json:"usedMemoryHuman,omitempty"`
	Keys            int64  `json:"keys"`
}

type Snapshot struct {
	Database             *Database `json:"database,omitempty"`
	Redis                *Redis    `json:"redis,omitempty"`
	PendingRegistrations int64     `json:"pendingRegistrations"`
	OutboxPending        int64     `json:"outboxPending"`
	OutboxFailed         int64     `json:"outboxFailed"`
	TakenAt              time.Time `json:"takenAt"`
}

type PendingCounter interface {
	Count(ctx context.Context) (int64, error)
}

type OutboxCounter interface {
	Counts(ctx context.Context) (map[notify.Status]int64, error)
}

// Collector reads storage usage. Any of its sources may be nil, in which
// case that part of the snapshot is left empty.
type Collector struct {
	db      *sql.DB
	redis   *redis.Client
	pending PendingCounter
	outbox  OutboxCounter
	logger  *zap.Logger
	now     func() time.Time
}

func NewCollector(db *sql.DB, rdb *redis.Client, pending PendingCounter, outbox OutboxCounter, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{db: db, redis: rdb, pending: pending, outbox: outbox, logger: logger, now: time.Now}
}

func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{TakenAt: c.now().UTC()}

	if c.db != nil {
		db, err := c.database(ctx)
		if err != nil {
			return nil, err
		}
		snap.Database = db
	}
	if c.redis != nil {
		r, err := c.redisStats(ctx)
		if err != nil {
			return nil, err
		}
		snap.Redis = r
	}
	if c.pending != nil {
		n, err := c.pending.Count(ctx)
		if err != nil {
			return nil, err
		}
		snap.PendingRegistrations = n
	}
	if c.outbox != nil {
		counts, err := c.outbox.Counts(ctx)
		if err != nil {
			return nil, err
		}
		snap.OutboxPending = counts[notify.StatusPending]
		snap.OutboxFailed = counts[notify.StatusFailed]
	}
	return snap, nil
}

func (c *Collector) database(ctx context.Context) (*Database, error) {
	out := &Database{Tables: []Table{}}
	if err := c.db.QueryRowContext(ctx, `select pg_database_size(current_database())`).Scan(&out.SizeBytes); err != nil {
		return nil, fmt.Errorf("database size: %w", err)
	}

	rows, err := c.db.QueryContext(ctx, `
		select relname, n_live_tup, pg_total_relation_size(relid)
		from pg_stat_user_tables
		order by pg_total_relation_size(relid) desc`)
	if err != nil {
		return nil, fmt.Errorf("table sizes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t Table
		if err := rows.Scan(&t.Name, &t.Rows, &t.SizeBytes); err != nil {
			return nil, fmt.Errorf("scan table size: %w", err)
		}
		out.Tables = append(out.Tables, t)
	}
	return out, rows.Err()
}

func (c *Collector) redisStats(ctx context.Context) (*Redis, error) {
	keys, err := c.redis.DBSize(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("redis dbsize: %w", err)
	}
	out := &Redis{Keys: keys}

	info, err := c.redis.Info(ctx, "memory").Result()
	if err != nil {
		c.logger.Warn("redis memory info unavailable", zap.Error(err))
		return out, nil
	}
	fields := parseInfo(info)
	out.UsedMemory, _ = strconv.ParseInt(fields["used_memory"], 10, 64)
	out.UsedMemoryHuman = fields["used_memory_human"]
	return out, nil
}

// parseInfo reads the key:value lines of an INFO reply.
func parseInfo(info string) map[string]string {
	out := map[string]string{}
	sc := bufio.NewScanner(strings.NewReader(info))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, ":"); ok {
			out[k] = v
		}
	}
	return out
}

// Log writes snap as one structured line.
func Log(logger *zap.Logger, snap *Snapshot) {
	fields := []zap.Field{
		zap.Int64("pending_registrations", snap.PendingRegistrations),
		zap.Int64("outbox_pending", snap.OutboxPending),
		zap.Int64("outbox_failed", snap.OutboxFailed),
	}
	if snap.Database != nil {
		fields = append(fields, zap.Int64("db_bytes", snap.Database.SizeBytes), zap.Int("db_tables", len(snap.Database.Tables)))
	}
	if snap.Redis != nil {
		fields = append(fields, zap.Int64("redis_used_memory", snap.Redis.UsedMemory), zap.Int64("redis_keys", snap.Redis.Keys))
	}
	logger.Info("storage snapshot", fields...)
}
