package cache

import (
	"time"
)

// TTLPolicy 决定缓存信封的有效期：用户键使用更长的 User TTL。
type TTLPolicy struct {
	Default time.Duration
	User    time.Duration
	UserKey string
}

// DefaultPolicy 返回 1h / 12h 的默认策略。
func DefaultPolicy() TTLPolicy {
	return TTLPolicy{Default: DefaultTTL, User: UserTTL, UserKey: UserCacheName}
}

func (p TTLPolicy) normalized() TTLPolicy {
	if p.Default <= 0 {
		p.Default = DefaultTTL
	}
	if p.User <= 0 {
		p.User = UserTTL
	}
	if p.UserKey == "" {
		p.UserKey = UserCacheName
	}
	return p
}

// For 返回 key 适用的 TTL。
func (p TTLPolicy) For(key string) time.Duration {
	if key == p.UserKey {
		return p.User
	}
	return p.Default
}

// Expired 判断提交于 committed 的信封在 now 时是否已过期；恰好等于 TTL 仍有效。
func (p TTLPolicy) Expired(key string, committed, now time.Time) bool {
	return now.Sub(committed) > p.For(key)
}
