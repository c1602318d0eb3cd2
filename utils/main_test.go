package utils

import (
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/cppla/taskquest/config"
)

func TestMain(m *testing.M) {
	config.Set(config.Defaults("utils-secret"))
	SetRedis(nil)
	os.Exit(m.Run())
}

// withRedis points the package at a fresh in-memory redis for the duration of the test.
func withRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	SetRedis(rc)
	t.Cleanup(func() {
		SetRedis(nil)
		_ = rc.Close()
	})
	return mr
}
