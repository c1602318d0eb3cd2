package utils

import (
	"context"
	"sync"
	"time"
)

var (
	blacklist   = map[string]time.Time{}
	blacklistMu sync.RWMutex
)

// BlacklistToken revokes a token until its natural expiration to support logout.
func BlacklistToken(token string, expiresAt time.Time) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := rc.Set(ctx, "jwt:blacklist:"+token, "1", ttl).Err(); err == nil {
			return
		}
	}
	blacklistMu.Lock()
	blacklist[token] = expiresAt
	blacklistMu.Unlock()
}

// IsTokenBlacklisted checks if a token was revoked before natural expiration.
func IsTokenBlacklisted(token string) bool {
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if n, err := rc.Exists(ctx, "jwt:blacklist:"+token).Result(); err == nil && n > 0 {
			return true
		}
	}
	blacklistMu.RLock()
	expiresAt, ok := blacklist[token]
	blacklistMu.RUnlock()
	if !ok {
		return false
	}
	if time.Now().After(expiresAt) {
		blacklistMu.Lock()
		delete(blacklist, token)
		blacklistMu.Unlock()
		return false
	}
	return true
}
