// FilePath: internal/store/redis.go
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/ksuid"
	nuts "github.com/vaudience/go-nuts"

	"github.com/hydroguard/hydroguard/internal/config"
)

const (
	docPrefix     = "hg:doc:"
	indexPrefix   = "hg:idx:"
	channelPrefix = "hg:evt:"
)

// RedisStore implements Client on top of Redis: one hash per document with
// JSON-encoded scalar fields, a sorted-set child index per collection scored
// by epoch-ms timestamp, and a pub/sub channel per path for live events.
type RedisStore struct {
	rdb *redis.Client
}

// wireEvent is the pub/sub payload. It carries no document body; receivers
// re-read the full record so a late delivery can never resurrect stale data.
type wireEvent struct {
	Type EventType `json:"type"`
	Path string    `json:"path"`
	ID   string    `json:"id,omitempty"`
}

// NewRedisStore connects to the configured Redis instance.
func NewRedisStore(cfg config.StoreConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, pkgerrors.Wrap(err, "error connecting to store")
	}

	nuts.L.Infof("[RedisStore] Connected to %s:%d/%d", cfg.Host, cfg.Port, cfg.DB)
	return &RedisStore{rdb: rdb}, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// Get reads a document snapshot. A missing document reads as empty.
func (s *RedisStore) Get(ctx context.Context, path string) (Document, error) {
	raw, err := s.rdb.HGetAll(ctx, docPrefix+path).Result()
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "error reading %s", path)
	}

	doc := make(Document, len(raw))
	for k, v := range raw {
		doc[k] = decodeField(v)
	}
	return doc, nil
}

// Update applies a partial field update and publishes change events on the
// document's own channel and on its parent collection channel.
func (s *RedisStore) Update(ctx context.Context, path string, fields map[string]any) error {
	encoded, err := encodeFields(fields, s.now())
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, docPrefix+path, encoded)
	if parent, id, ok := splitPath(path); ok {
		// Membership only; Append owns the timestamp score.
		pipe.ZAddNX(ctx, indexPrefix+parent, redis.Z{Score: float64(s.now()), Member: id})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return pkgerrors.Wrapf(err, "error updating %s", path)
	}

	s.publish(ctx, path, wireEvent{Type: EventChanged, Path: path})
	if parent, id, ok := splitPath(path); ok {
		s.publish(ctx, parent, wireEvent{Type: EventChanged, Path: parent, ID: id})
	}
	return nil
}

// Append inserts a child with a store-assigned id and returns the id.
func (s *RedisStore) Append(ctx context.Context, path string, fields map[string]any) (string, error) {
	now := s.now()
	encoded, err := encodeFields(fields, now)
	if err != nil {
		return "", err
	}

	id := ksuid.New().String()
	child := path + "/" + id

	// Index score is the record's own timestamp when it carries one, so a
	// time-bounded child replay matches what the writer stamped.
	score := now
	if ts, ok := fields["ts"]; ok {
		if _, isSentinel := ts.(serverTimestamp); !isSentinel {
			score = Document(fields).Int64Any(now, "ts")
		}
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, docPrefix+child, encoded)
	pipe.ZAdd(ctx, indexPrefix+path, redis.Z{Score: float64(score), Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", pkgerrors.Wrapf(err, "error appending to %s", path)
	}

	s.publish(ctx, path, wireEvent{Type: EventAdded, Path: path, ID: id})
	return id, nil
}

// Children reads a snapshot of a child collection in index order.
func (s *RedisStore) Children(ctx context.Context, path string, since int64) ([]Child, error) {
	min := "-inf"
	if since > 0 {
		min = fmt.Sprintf("%d", since)
	}
	ids, err := s.rdb.ZRangeByScore(ctx, indexPrefix+path, &redis.ZRangeBy{Min: min, Max: "+inf"}).Result()
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "error listing children of %s", path)
	}

	children := make([]Child, 0, len(ids))
	for _, id := range ids {
		doc, err := s.Get(ctx, path+"/"+id)
		if err != nil {
			return nil, err
		}
		children = append(children, Child{ID: id, Doc: doc})
	}
	return children, nil
}

// Watch attaches a live value subscription. The current snapshot is
// delivered first, then one changed event per store write.
func (s *RedisStore) Watch(path string, h Handler) (Subscription, error) {
	ctx := context.Background()
	pubsub := s.rdb.Subscribe(ctx, channelPrefix+path)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, pkgerrors.Wrapf(err, "error subscribing to %s", path)
	}

	sub := &redisSubscription{pubsub: pubsub}
	go func() {
		doc, err := s.Get(ctx, path)
		if err != nil {
			sub.fail(h, err)
			return
		}
		h.OnEvent(Event{Type: EventChanged, Path: path, Doc: doc})

		for range pubsub.Channel() {
			doc, err := s.Get(ctx, path)
			if err != nil {
				sub.fail(h, err)
				return
			}
			h.OnEvent(Event{Type: EventChanged, Path: path, Doc: doc})
		}
	}()
	return sub, nil
}

// WatchChildren attaches a live child-collection subscription. The channel
// is joined before the replay so no event between replay and live phase is
// lost; duplicates are possible and absorbed by the id-keyed fold upstream.
func (s *RedisStore) WatchChildren(path string, since int64, h Handler) (Subscription, error) {
	ctx := context.Background()
	pubsub := s.rdb.Subscribe(ctx, channelPrefix+path)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, pkgerrors.Wrapf(err, "error subscribing to %s", path)
	}

	sub := &redisSubscription{pubsub: pubsub}
	go func() {
		min := "-inf"
		if since > 0 {
			min = fmt.Sprintf("%d", since)
		}
		ids, err := s.rdb.ZRangeByScore(ctx, indexPrefix+path, &redis.ZRangeBy{Min: min, Max: "+inf"}).Result()
		if err != nil {
			sub.fail(h, pkgerrors.Wrapf(err, "error replaying children of %s", path))
			return
		}
		for _, id := range ids {
			doc, err := s.Get(ctx, path+"/"+id)
			if err != nil {
				sub.fail(h, err)
				return
			}
			h.OnEvent(Event{Type: EventAdded, Path: path, ID: id, Doc: doc})
		}

		for msg := range pubsub.Channel() {
			var evt wireEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				nuts.L.Warnf("[RedisStore] dropping malformed event on %s: %v", path, err)
				continue
			}
			if evt.ID == "" {
				continue
			}

			out := Event{Type: evt.Type, Path: path, ID: evt.ID}
			if evt.Type != EventRemoved {
				doc, err := s.Get(ctx, path+"/"+evt.ID)
				if err != nil {
					sub.fail(h, err)
					return
				}
				out.Doc = doc
			}
			h.OnEvent(out)
		}
	}()
	return sub, nil
}

func (s *RedisStore) publish(ctx context.Context, path string, evt wireEvent) {
	payload, err := json.Marshal(evt)
	if err != nil {
		nuts.L.Errorf("[RedisStore] failed to encode event for %s: %v", path, err)
		return
	}
	if err := s.rdb.Publish(ctx, channelPrefix+path, payload).Err(); err != nil {
		nuts.L.Warnf("[RedisStore] failed to publish event for %s: %v", path, err)
	}
}

func (s *RedisStore) now() int64 {
	return time.Now().UTC().UnixMilli()
}

// redisSubscription is one live listener. Detach is idempotent.
type redisSubscription struct {
	pubsub *redis.PubSub
	once   sync.Once
	failed sync.Once
}

func (r *redisSubscription) Detach() {
	r.once.Do(func() { _ = r.pubsub.Close() })
}

// fail surfaces the error to the handler exactly once and kills the
// subscription. There is no automatic retry; resubscribing is the owner's
// responsibility.
func (r *redisSubscription) fail(h Handler, err error) {
	r.failed.Do(func() {
		if h.OnError != nil {
			h.OnError(err)
		}
	})
	r.Detach()
}

// encodeFields JSON-encodes scalar field values and resolves the
// ServerTimestamp sentinel against the store clock.
func encodeFields(fields map[string]any, now int64) (map[string]string, error) {
	encoded := make(map[string]string, len(fields))
	for k, v := range fields {
		if _, ok := v.(serverTimestamp); ok {
			v = now
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "unencodable field %s", k)
		}
		encoded[k] = string(b)
	}
	return encoded, nil
}

func decodeField(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		// Legacy writers store bare strings.
		return raw
	}
	return v
}

func splitPath(path string) (parent, id string, ok bool) {
	i := strings.LastIndex(path, "/")
	if i <= 0 || i == len(path)-1 {
		return "", "", false
	}
	return path[:i], path[i+1:], true
}
