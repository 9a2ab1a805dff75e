package redis

import (
	"context"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/ragstream/internal/db"
)

// Get retrieves a value by key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	cmd := s.b().Get().Key(key).Build()
	data, err := s.do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, db.ErrKeyNotFound
		}
		return nil, &db.Error{Op: db.OpGet, Err: err}
	}
	return data, nil
}

// SetWithTTL stores a value with an expiration. A non-positive ttl stores
// the value without expiry.
func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var cmd rueidis.Completed
	if ttl > 0 {
		cmd = s.b().Set().Key(key).Value(rueidis.BinaryString(value)).Ex(ttl).Build()
	} else {
		cmd = s.b().Set().Key(key).Value(rueidis.BinaryString(value)).Build()
	}
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpSet, Err: err}
	}
	return nil
}
