package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/deepresearch/internal/research"
)

const (
	keyPrefix       = "dr:events:"
	defaultCapacity = 256
	defaultTTL      = 24 * time.Hour
	readBlock       = 500 * time.Millisecond
	publishTimeout  = 2 * time.Second
)

// Event is a streaming event used by SSE and WebSocket handlers.
type Event struct {
	WorkflowID string                 `json:"workflow_id"`
	Type       string                 `json:"type"`
	AgentID    string                 `json:"agent_id,omitempty"`
	Message    string                 `json:"message,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Seq        uint64                 `json:"seq"`
}

// Marshal returns JSON for event payloads in SSE or logs.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Option configures a Manager.
type Option func(*Manager)

// WithCapacity bounds the per-session history kept for replay.
func WithCapacity(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.capacity = n
		}
	}
}

// WithTTL sets how long a session stream outlives its last event.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// Manager fans progress events out to subscribers. With a redis client it
// appends to one Redis Stream per session so any process can replay and
// follow; without one it keeps an in-memory ring per session.
type Manager struct {
	redis    redis.UniversalClient
	logger   *zap.Logger
	capacity int
	ttl      time.Duration

	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	history     map[string]*ring
}

// NewManager creates a manager. client may be nil for in-memory operation.
func NewManager(client redis.UniversalClient, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		redis:       client,
		logger:      logger,
		capacity:    defaultCapacity,
		ttl:         defaultTTL,
		subscribers: make(map[string]map[chan Event]struct{}),
		history:     make(map[string]*ring),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Emit implements research.Emitter. Failures are logged and dropped.
func (m *Manager) Emit(ctx context.Context, ev research.Event) {
	if err := m.publish(ctx, ev.SessionID, Event{
		WorkflowID: ev.SessionID,
		Type:       ev.Type,
		AgentID:    ev.AgentID,
		Message:    ev.Message,
		Timestamp:  ev.Timestamp,
	}); err != nil {
		m.logger.Warn("Failed to publish progress event",
			zap.String("session_id", ev.SessionID),
			zap.String("type", ev.Type),
			zap.Error(err),
		)
	}
}

// Publish appends an event to the session's stream (best effort).
func (m *Manager) Publish(workflowID string, evt Event) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := m.publish(ctx, workflowID, evt); err != nil {
		m.logger.Warn("Failed to publish event",
			zap.String("workflow_id", workflowID),
			zap.Error(err),
		)
	}
}

func (m *Manager) publish(ctx context.Context, workflowID string, evt Event) error {
	if workflowID == "" {
		return errors.New("empty workflow id")
	}
	evt.WorkflowID = workflowID
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	if m.redis == nil {
		m.publishLocal(workflowID, evt)
		return nil
	}

	seq, err := m.redis.Incr(ctx, seqKey(workflowID)).Result()
	if err != nil {
		return fmt.Errorf("assign seq: %w", err)
	}
	evt.Seq = uint64(seq)
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = m.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: streamKey(workflowID),
			MaxLen: int64(m.capacity),
			Approx: true,
			Values: map[string]interface{}{
				"seq":     strconv.FormatUint(evt.Seq, 10),
				"payload": string(payload),
			},
		})
		pipe.Expire(ctx, streamKey(workflowID), m.ttl)
		pipe.Expire(ctx, seqKey(workflowID), m.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append stream: %w", err)
	}
	return nil
}

func (m *Manager) publishLocal(workflowID string, evt Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rg := m.history[workflowID]
	if rg == nil {
		rg = newRing(m.capacity)
		m.history[workflowID] = rg
	}
	rg.nextSeq++
	evt.Seq = rg.nextSeq
	rg.push(evt)
	for ch := range m.subscribers[workflowID] {
		select {
		case ch <- evt:
		default:
			// Drop if subscriber is slow
		}
	}
}

// ReplaySince returns retained events with Seq > since in order.
func (m *Manager) ReplaySince(workflowID string, since uint64) []Event {
	if m.redis == nil {
		m.mu.RLock()
		defer m.mu.RUnlock()
		rg := m.history[workflowID]
		if rg == nil {
			return nil
		}
		return rg.since(since)
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	msgs, err := m.redis.XRange(ctx, streamKey(workflowID), "-", "+").Result()
	if err != nil {
		m.logger.Warn("Failed to replay stream", zap.String("workflow_id", workflowID), zap.Error(err))
		return nil
	}
	out := make([]Event, 0, len(msgs))
	for _, msg := range msgs {
		ev, ok := m.decode(msg)
		if ok && ev.Seq > since {
			out = append(out, ev)
		}
	}
	return out
}

// Subscribe delivers every event with Seq > since to out, replaying retained
// history first, until ctx is done. It returns nil on cancellation.
func (m *Manager) Subscribe(ctx context.Context, workflowID string, since uint64, out chan<- Event) error {
	if m.redis == nil {
		return m.subscribeLocal(ctx, workflowID, since, out)
	}

	lastID := "0-0"
	for {
		if ctx.Err() != nil {
			return nil
		}
		res, err := m.redis.XRead(ctx, &redis.XReadArgs{
			Streams: []string{streamKey(workflowID), lastID},
			Count:   100,
			Block:   readBlock,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read stream: %w", err)
		}
		for _, stream := range res {
			for _, msg := range stream.Messages {
				lastID = msg.ID
				ev, ok := m.decode(msg)
				if !ok || ev.Seq <= since {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

func (m *Manager) subscribeLocal(ctx context.Context, workflowID string, since uint64, out chan<- Event) error {
	ch := make(chan Event, m.capacity)
	m.mu.Lock()
	subs := m.subscribers[workflowID]
	if subs == nil {
		subs = make(map[chan Event]struct{})
		m.subscribers[workflowID] = subs
	}
	subs[ch] = struct{}{}
	var backlog []Event
	if rg := m.history[workflowID]; rg != nil {
		backlog = rg.since(since)
	}
	m.mu.Unlock()
	defer m.unsubscribe(workflowID, ch)

	last := since
	for _, ev := range backlog {
		select {
		case out <- ev:
			last = ev.Seq
		case <-ctx.Done():
			return nil
		}
	}
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if ev.Seq <= last {
				continue
			}
			select {
			case out <- ev:
				last = ev.Seq
			case <-ctx.Done():
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (m *Manager) unsubscribe(workflowID string, ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subs, ok := m.subscribers[workflowID]; ok {
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(m.subscribers, workflowID)
		}
	}
}

// CloseStreams drops retained history for a session and ends local
// subscriptions.
func (m *Manager) CloseStreams(workflowID string) {
	m.mu.Lock()
	delete(m.history, workflowID)
	for ch := range m.subscribers[workflowID] {
		close(ch)
	}
	delete(m.subscribers, workflowID)
	m.mu.Unlock()

	if m.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := m.redis.Del(ctx, streamKey(workflowID), seqKey(workflowID)).Err(); err != nil {
		m.logger.Warn("Failed to delete stream", zap.String("workflow_id", workflowID), zap.Error(err))
	}
}

func (m *Manager) decode(msg redis.XMessage) (Event, bool) {
	raw, ok := msg.Values["payload"].(string)
	if !ok {
		return Event{}, false
	}
	var ev Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		m.logger.Debug("Skipping malformed stream entry", zap.String("id", msg.ID), zap.Error(err))
		return Event{}, false
	}
	return ev, true
}

func streamKey(workflowID string) string { return keyPrefix + workflowID }
func seqKey(workflowID string) string    { return keyPrefix + workflowID + ":seq" }

// ring is a fixed-capacity ring buffer of events
type ring struct {
	buf     []Event
	start   int
	count   int
	nextSeq uint64
}

func newRing(capacity int) *ring { return &ring{buf: make([]Event, capacity)} }

func (r *ring) push(e Event) {
	if len(r.buf) == 0 {
		return
	}
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	// overwrite oldest
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) since(seq uint64) []Event {
	if r.count == 0 {
		return nil
	}
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		ev := r.buf[(r.start+i)%len(r.buf)]
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}
