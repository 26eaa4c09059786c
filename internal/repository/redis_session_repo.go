package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix はセッションキーの接頭辞。
const redisKeyPrefix = "session:"

// RedisSessionRepo はRedisを使用したセッションリポジトリ。
// 有効期限はキーのTTLで表現するため、期限切れ削除はRedis側に任せる。
type RedisSessionRepo struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisSessionRepo はRedisSessionRepoを生成する。
func NewRedisSessionRepo(client *redis.Client) *RedisSessionRepo {
	return &RedisSessionRepo{client: client, now: time.Now}
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}

// Put はセッションを保存する。TTLはexpiresAtまでの残り時間。
func (r *RedisSessionRepo) Put(ctx context.Context, id string, data []byte, expiresAt time.Time) error {
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		// 既に期限切れの値は保存せず、残っているキーも消す
		return r.Delete(ctx, id)
	}

	if err := r.client.Set(ctx, redisKey(id), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to put session: %w", err)
	}
	return nil
}

// Get は指定IDのセッションを取得する。存在しない場合はnilを返す。
func (r *RedisSessionRepo) Get(ctx context.Context, id string) ([]byte, error) {
	data, err := r.client.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return data, nil
}

// Delete は指定IDのセッションを削除する。
func (r *RedisSessionRepo) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, redisKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired はRedisのキー失効に任せるため何もしない。
func (r *RedisSessionRepo) DeleteExpired(context.Context) (int64, error) {
	return 0, nil
}

// compile-time interface check
var _ SessionRepository = (*RedisSessionRepo)(nil)
