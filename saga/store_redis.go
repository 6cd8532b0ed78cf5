package saga

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
)

// redis 键前缀.
const (
	redisSagaPrefix     = "saga:"
	redisStepPrefix     = "saga:step:"
	redisBusinessPrefix = "saga:bk:"
	redisStatusPrefix   = "saga:status:"
)

// RedisStore 基于 Redis 的聚合存储.
//
// 聚合整体序列化为 JSON 存储；版本检查通过 WATCH 事务实现，
// 提交前版本号被其他写入方改变时事务失败并返回 ErrVersionConflict.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore 创建 Redis 存储.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Create 创建聚合.
func (s *RedisStore) Create(ctx context.Context, sg *Saga) error {
	data, err := json.Marshal(sg)
	if err != nil {
		return err
	}

	// 先抢占业务键索引，重投的触发事件在这里被拒绝
	bkKey := redisBusinessPrefix + sg.BusinessKey
	ok, err := s.client.SetNX(ctx, bkKey, sg.ID, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrDuplicateSaga
	}

	key := redisSagaPrefix + sg.ID
	ok, err = s.client.SetNX(ctx, key, data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		s.client.Del(ctx, bkKey)
		return ErrDuplicateSaga
	}

	pipe := s.client.Pipeline()
	for _, step := range sg.Steps {
		pipe.Set(ctx, redisStepPrefix+step.ID, sg.ID, 0)
	}
	pipe.SAdd(ctx, redisStatusPrefix+string(sg.Status), sg.ID)
	_, err = pipe.Exec(ctx)
	return err
}

// Save 保存聚合，版本不匹配时返回 ErrVersionConflict.
func (s *RedisStore) Save(ctx context.Context, sg *Saga) error {
	key := redisSagaPrefix + sg.ID
	expected := sg.Version

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrSagaNotFound
			}
			return err
		}

		var current Saga
		if err := json.Unmarshal([]byte(raw), &current); err != nil {
			return err
		}
		if current.Version != expected {
			return ErrVersionConflict
		}

		sg.Version = expected + 1
		data, err := json.Marshal(sg)
		if err != nil {
			sg.Version = expected
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if current.Status != sg.Status {
				pipe.SRem(ctx, redisStatusPrefix+string(current.Status), sg.ID)
				pipe.SAdd(ctx, redisStatusPrefix+string(sg.Status), sg.ID)
			}
			return nil
		})
		if err != nil {
			sg.Version = expected
		}
		return err
	}, key)

	// WATCH 事务失败意味着并发写入，按版本冲突处理
	if errors.Is(err, redis.TxFailedErr) {
		sg.Version = expected
		return ErrVersionConflict
	}
	return err
}

// Get 加载聚合.
func (s *RedisStore) Get(ctx context.Context, id string) (*Saga, error) {
	raw, err := s.client.Get(ctx, redisSagaPrefix+id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSagaNotFound
		}
		return nil, err
	}

	var sg Saga
	if err := json.Unmarshal([]byte(raw), &sg); err != nil {
		return nil, err
	}
	return &sg, nil
}

// GetByStep 根据步骤标识加载所属聚合.
func (s *RedisStore) GetByStep(ctx context.Context, stepID string) (*Saga, error) {
	sagaID, err := s.client.Get(ctx, redisStepPrefix+stepID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrStepNotFound
		}
		return nil, err
	}
	return s.Get(ctx, sagaID)
}

// GetByBusinessKey 根据业务键加载聚合.
func (s *RedisStore) GetByBusinessKey(ctx context.Context, businessKey string) (*Saga, error) {
	sagaID, err := s.client.Get(ctx, redisBusinessPrefix+businessKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSagaNotFound
		}
		return nil, err
	}
	return s.Get(ctx, sagaID)
}

// ListByStatus 列出指定状态的 Saga.
func (s *RedisStore) ListByStatus(ctx context.Context, status SagaStatus, limit int) ([]*Saga, error) {
	ids, err := s.client.SMembers(ctx, redisStatusPrefix+string(status)).Result()
	if err != nil {
		return nil, err
	}

	var result []*Saga
	for _, id := range ids {
		sg, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrSagaNotFound) {
				continue
			}
			return nil, err
		}
		// 状态集合可能滞后于聚合本体，读取时再次过滤
		if sg.Status != status {
			continue
		}
		result = append(result, sg)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}
