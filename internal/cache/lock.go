package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotHeld 锁已过期或被其他持有者获取
var ErrLockNotHeld = errors.New("lock not held")

// releaseScript 仅在令牌一致时删除，避免误删他人续上的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock 基于 SET NX PX 的租约锁
type Lock struct {
	client *redis.Client
	key    string
	token  string
}

// AcquireLock 尝试获取租约，已被占用时返回 acquired=false
func AcquireLock(ctx context.Context, client *redis.Client, name string, ttl time.Duration) (*Lock, bool, error) {
	if client == nil {
		return nil, false, ErrDisabled
	}
	lock := &Lock{
		client: client,
		key:    lockKey(name),
		token:  uuid.NewString(),
	}
	ok, err := client.SetNX(ctx, lock.key, lock.token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return lock, true, nil
}

// Release 释放租约
func (l *Lock) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	deleted, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// SweepLocker 过期扫描互斥锁
type SweepLocker struct {
	client *redis.Client
}

// NewSweepLocker 使用全局 Redis 客户端创建扫描锁，Redis 未启用时返回 nil
func NewSweepLocker() *SweepLocker {
	if !Enabled() {
		return nil
	}
	return &SweepLocker{client: redisClient}
}

// TryLock 获取扫描租约，返回释放函数
func (s *SweepLocker) TryLock(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, bool, error) {
	lock, acquired, err := AcquireLock(ctx, s.client, name, ttl)
	if err != nil || !acquired {
		return nil, acquired, err
	}
	return lock.Release, true, nil
}

func lockKey(name string) string {
	return buildKey("lock:" + strings.TrimSpace(name))
}
