package utils

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// MaxLoginFailures locks an email after this many failed logins within an hour.
	MaxLoginFailures = 5
	// LoginLockDuration is how long a locked email stays locked.
	LoginLockDuration = 15 * time.Minute
	// MaxRegistrationsPerIPPerDay caps successful registrations from one address.
	MaxRegistrationsPerIPPerDay = 20
)

func guardKey(parts ...string) string {
	return "authguard:" + strings.Join(parts, ":")
}

func guardCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 500*time.Millisecond)
}

// LoginLocked reports whether email is temporarily locked. Without redis nothing is ever locked.
func LoginLocked(email string) bool {
	cli := GetRedis()
	if cli == nil {
		return false
	}
	ctx, cancel := guardCtx()
	defer cancel()
	exists, err := cli.Exists(ctx, guardKey("lock", email)).Result()
	if err != nil {
		return false
	}
	return exists > 0
}

// LoginFailRecord counts a failed login and locks the email once MaxLoginFailures is reached.
// It returns the current failure count.
func LoginFailRecord(email string) int {
	cli := GetRedis()
	if cli == nil {
		return 0
	}
	ctx, cancel := guardCtx()
	defer cancel()
	key := guardKey("fail", email)
	n, err := cli.Incr(ctx, key).Result()
	if err != nil {
		return 0
	}
	if n == 1 {
		_ = cli.Expire(ctx, key, time.Hour).Err()
	}
	if n >= MaxLoginFailures {
		_ = cli.Set(ctx, guardKey("lock", email), "1", LoginLockDuration).Err()
		_ = cli.Del(ctx, key).Err()
		Sugar.Warnw("login locked after repeated failures", "email", email)
	}
	return int(n)
}

// LoginReset clears the failure counter after a successful login.
func LoginReset(email string) {
	cli := GetRedis()
	if cli == nil {
		return
	}
	ctx, cancel := guardCtx()
	defer cancel()
	_ = cli.Del(ctx, guardKey("fail", email)).Err()
}

// RegistrationAllowed reports whether ip is still under today's registration cap. It fails open.
func RegistrationAllowed(ip string, now time.Time) bool {
	cli := GetRedis()
	if cli == nil {
		return true
	}
	ctx, cancel := guardCtx()
	defer cancel()
	n, err := cli.Get(ctx, guardKey("reg", ip, now.Format("20060102"))).Int()
	if err == redis.Nil {
		return true
	}
	if err != nil {
		return true
	}
	return n < MaxRegistrationsPerIPPerDay
}

// RegistrationRecord counts a successful registration for ip until the end of the day.
func RegistrationRecord(ip string, now time.Time) {
	cli := GetRedis()
	if cli == nil {
		return
	}
	ctx, cancel := guardCtx()
	defer cancel()
	key := guardKey("reg", ip, now.Format("20060102"))
	if err := cli.Incr(ctx, key).Err(); err == nil {
		_ = cli.Expire(ctx, key, 24*time.Hour).Err()
	}
}
