package batch

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/sells-group/atlas-research/internal/model"
)

// maxTxRetries bounds optimistic retries when a watched upload key changes
// underneath an Update.
const maxTxRetries = 5

// RedisRegistry is a Registry shared between processes through Redis.
// Updates use WATCH/MULTI so a state transition applies exactly once.
type RedisRegistry struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisRegistry creates a RedisRegistry storing uploads under prefix.
func NewRedisRegistry(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisRegistry {
	if prefix == "" {
		prefix = "atlas:upload:"
	}
	if ttl <= 0 {
		ttl = DefaultUploadTTL
	}
	return &RedisRegistry{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (r *RedisRegistry) key(filename string) string {
	return r.prefix + filename
}

func (r *RedisRegistry) Register(ctx context.Context, filename string) (model.Upload, error) {
	up := model.Upload{
		Filename:   filename,
		State:      model.UploadUploaded,
		UploadedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(up)
	if err != nil {
		return model.Upload{}, eris.Wrap(err, "registry: marshal upload")
	}
	ok, err := r.rdb.SetNX(ctx, r.key(filename), data, r.ttl).Result()
	if err != nil {
		return model.Upload{}, eris.Wrap(err, "registry: register")
	}
	if !ok {
		return model.Upload{}, model.NewValidationError(filename, "already registered")
	}
	return up, nil
}

func (r *RedisRegistry) Get(ctx context.Context, filename string) (model.Upload, error) {
	return r.load(ctx, r.rdb, filename)
}

func (r *RedisRegistry) load(ctx context.Context, c redis.Cmdable, filename string) (model.Upload, error) {
	data, err := c.Get(ctx, r.key(filename)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Upload{}, unknownUpload(filename)
	}
	if err != nil {
		return model.Upload{}, eris.Wrap(err, "registry: get")
	}
	var up model.Upload
	if err := json.Unmarshal(data, &up); err != nil {
		return model.Upload{}, eris.Wrap(err, "registry: unmarshal upload")
	}
	return up, nil
}

func (r *RedisRegistry) Update(ctx context.Context, filename string, fn func(*model.Upload) error) (model.Upload, error) {
	key := r.key(filename)
	var result model.Upload

	txf := func(tx *redis.Tx) error {
		up, err := r.load(ctx, tx, filename)
		if err != nil {
			return err
		}
		result = up
		if err := fn(&up); err != nil {
			return err
		}
		data, err := json.Marshal(up)
		if err != nil {
			return eris.Wrap(err, "registry: marshal upload")
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, redis.KeepTTL)
			return nil
		})
		if err == nil {
			result = up
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if model.IsValidation(err) {
				return result, err
			}
			return result, eris.Wrap(err, "registry: update")
		}
		return result, nil
	}
	return result, eris.Errorf("registry: update %s: too much contention", filename)
}
