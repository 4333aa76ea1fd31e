package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key layout for the ephemeral waitlist:
//   waitlist:queue:{scheduleID}              list of JSON entries, FIFO by join time
//   waitlist:position:{scheduleID}:{patient} cached 1-based position for quick lookups
// Keys expire after queueTTL; the periodic sync job mirrors positions into the
// orders table before that, so the durable copy survives Redis restarts.
const (
	queueKeyPrefix    = "waitlist:queue"
	positionKeyPrefix = "waitlist:position"
	queueTTL          = 6 * time.Hour
)

// ErrQueueUnavailable is returned when no Redis client is configured.  The
// waitlist degrades to the durable mirror in that case.
var ErrQueueUnavailable = errors.New("waitlist queue store unavailable")

// WaitEntry is one queued claim as stored in Redis.
type WaitEntry struct {
	OrderID   uint64    `json:"order_id"`
	PatientID uint64    `json:"patient_id"`
	JoinedAt  time.Time `json:"joined_at"`
}

// WaitQueueRepo owns the per-schedule FIFO waitlist in Redis.  It is an
// ordering optimisation, never the record of capacity or terminal status;
// every entry popped from it is re-validated against the database before any
// state changes.
type WaitQueueRepo struct {
	rdb *redis.Client
}

// NewWaitQueueRepo returns a WaitQueueRepo over the given client, which may
// be nil when Redis is unreachable; all methods then report
// ErrQueueUnavailable and callers degrade gracefully.
func NewWaitQueueRepo(rdb *redis.Client) *WaitQueueRepo { return &WaitQueueRepo{rdb: rdb} }

// Available reports whether the ephemeral store can be used.
func (r *WaitQueueRepo) Available() bool { return r.rdb != nil }

func queueKey(scheduleID uint64) string {
	return fmt.Sprintf("%s:%d", queueKeyPrefix, scheduleID)
}

func positionKey(scheduleID, patientID uint64) string {
	return fmt.Sprintf("%s:%d:%d", positionKeyPrefix, scheduleID, patientID)
}

// Append adds an entry to the tail of the schedule's queue and returns its
// 1-based position.
func (r *WaitQueueRepo) Append(ctx context.Context, scheduleID uint64, e WaitEntry) (int, error) {
	if r.rdb == nil {
		return 0, ErrQueueUnavailable
	}
	body, err := json.Marshal(e)
	if err != nil {
		return 0, err
	}
	length, err := r.rdb.RPush(ctx, queueKey(scheduleID), body).Result()
	if err != nil {
		return 0, err
	}
	position := int(length)
	pipe := r.rdb.Pipeline()
	pipe.Expire(ctx, queueKey(scheduleID), queueTTL)
	pipe.Set(ctx, positionKey(scheduleID, e.PatientID), strconv.Itoa(position), queueTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return position, nil
}

// PopHead removes and returns the head entry, or nil when the queue is empty.
// Entries that fail to decode are dropped so one corrupt element cannot jam
// the cascade.
func (r *WaitQueueRepo) PopHead(ctx context.Context, scheduleID uint64) (*WaitEntry, error) {
	if r.rdb == nil {
		return nil, ErrQueueUnavailable
	}
	body, err := r.rdb.LPop(ctx, queueKey(scheduleID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var e WaitEntry
	if err := json.Unmarshal([]byte(body), &e); err != nil {
		return nil, nil
	}
	return &e, nil
}

// PushFront returns an entry to the head of the queue.  Used when a cascade
// pops an entry but loses the capacity race and must put it back unchanged.
func (r *WaitQueueRepo) PushFront(ctx context.Context, scheduleID uint64, e WaitEntry) error {
	if r.rdb == nil {
		return ErrQueueUnavailable
	}
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	pipe := r.rdb.Pipeline()
	pipe.LPush(ctx, queueKey(scheduleID), body)
	pipe.Expire(ctx, queueKey(scheduleID), queueTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// Remove deletes the patient's entry wherever it sits in the queue and clears
// the cached position.  It reports whether anything was removed.
func (r *WaitQueueRepo) Remove(ctx context.Context, scheduleID, patientID uint64) (bool, error) {
	if r.rdb == nil {
		return false, ErrQueueUnavailable
	}
	key := queueKey(scheduleID)
	items, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return false, err
	}
	kept := make([]any, 0, len(items))
	removed := false
	for _, item := range items {
		var e WaitEntry
		if err := json.Unmarshal([]byte(item), &e); err == nil && e.PatientID == patientID {
			removed = true
			continue
		}
		kept = append(kept, item)
	}
	if !removed {
		return false, nil
	}
	pipe := r.rdb.Pipeline()
	pipe.Del(ctx, key)
	if len(kept) > 0 {
		pipe.RPush(ctx, key, kept...)
		pipe.Expire(ctx, key, queueTTL)
	}
	pipe.Del(ctx, positionKey(scheduleID, patientID))
	_, err = pipe.Exec(ctx)
	return true, err
}

// Entries returns the whole queue for a schedule in FIFO order.
func (r *WaitQueueRepo) Entries(ctx context.Context, scheduleID uint64) ([]WaitEntry, error) {
	if r.rdb == nil {
		return nil, ErrQueueUnavailable
	}
	items, err := r.rdb.LRange(ctx, queueKey(scheduleID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]WaitEntry, 0, len(items))
	for _, item := range items {
		var e WaitEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// QueuedScheduleIDs scans for every schedule that currently has a queue.
// Used by the sync job; SCAN keeps Redis responsive where KEYS would not.
func (r *WaitQueueRepo) QueuedScheduleIDs(ctx context.Context) ([]uint64, error) {
	if r.rdb == nil {
		return nil, ErrQueueUnavailable
	}
	var ids []uint64
	iter := r.rdb.Scan(ctx, 0, queueKeyPrefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw := key[strings.LastIndex(key, ":")+1:]
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, iter.Err()
}
