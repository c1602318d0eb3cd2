package utils

import (
	"context"
	"sync"
	"time"
)

const stateKeyPrefix = "oauth:state:"

type pendingState struct {
	provider string
	expires  time.Time
}

var (
	stateStore   = map[string]pendingState{}
	stateStoreMu sync.Mutex
)

// SaveState remembers an OAuth state token for provider. Redis holds it when available,
// otherwise the process does.
func SaveState(state, provider string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := rc.Set(ctx, stateKeyPrefix+state, provider, ttl).Err(); err == nil {
			return
		}
	}
	now := time.Now()
	stateStoreMu.Lock()
	for k, v := range stateStore {
		if now.After(v.expires) {
			delete(stateStore, k)
		}
	}
	stateStore[state] = pendingState{provider: provider, expires: now.Add(ttl)}
	stateStoreMu.Unlock()
}

// ConsumeState removes the token and reports whether it was issued for provider and is unexpired.
// Each token works once, even when the provider does not match.
func ConsumeState(state, provider string) bool {
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if v, err := rc.GetDel(ctx, stateKeyPrefix+state).Result(); err == nil {
			return v == provider
		}
	}
	stateStoreMu.Lock()
	p, ok := stateStore[state]
	if ok {
		delete(stateStore, state)
	}
	stateStoreMu.Unlock()
	return ok && p.provider == provider && time.Now().Before(p.expires)
}
