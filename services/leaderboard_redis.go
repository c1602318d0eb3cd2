package services

import (
	"context"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/cppla/taskquest/models"
	"github.com/cppla/taskquest/store"
)

const (
	leaderboardPointsKey = "leaderboard:points"
	leaderboardNamesKey  = "leaderboard:names"
	// present only while the sorted set holds every user
	leaderboardSyncedKey = "leaderboard:synced"
)

// RedisLeaderboard ranks users with a sorted set scored by points. Display names live in a hash.
type RedisLeaderboard struct {
	rc *redis.Client
}

// NewRedisLeaderboard returns nil when rc is nil so callers can pass utils.GetRedis() directly.
func NewRedisLeaderboard(rc *redis.Client) *RedisLeaderboard {
	if rc == nil {
		return nil
	}
	return &RedisLeaderboard{rc: rc}
}

func member(userID uint) string {
	return strconv.FormatUint(uint64(userID), 10)
}

func (l *RedisLeaderboard) WriteLeaderboardEntry(ctx context.Context, e models.LeaderboardEntry) error {
	m := member(e.UserID)
	_, err := l.rc.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, leaderboardPointsKey, redis.Z{Score: float64(e.Points), Member: m})
		p.HSet(ctx, leaderboardNamesKey, m, e.Name)
		return nil
	})
	return err
}

// Rebuild swaps the whole ranking for entries in one transaction and marks the board synced.
func (l *RedisLeaderboard) Rebuild(ctx context.Context, entries []models.LeaderboardEntry) error {
	zs := make([]redis.Z, 0, len(entries))
	names := make(map[string]interface{}, len(entries))
	for _, e := range entries {
		m := member(e.UserID)
		zs = append(zs, redis.Z{Score: float64(e.Points), Member: m})
		names[m] = e.Name
	}
	_, err := l.rc.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, leaderboardPointsKey, leaderboardNamesKey)
		if len(zs) > 0 {
			p.ZAdd(ctx, leaderboardPointsKey, zs...)
			p.HSet(ctx, leaderboardNamesKey, names)
		}
		p.Set(ctx, leaderboardSyncedKey, "1", 0)
		return nil
	})
	return err
}

// Synced is false after a flush or a restart without persistence.
func (l *RedisLeaderboard) Synced(ctx context.Context) (bool, error) {
	n, err := l.rc.Exists(ctx, leaderboardSyncedKey).Result()
	return n == 1, err
}

func (l *RedisLeaderboard) TopEntries(ctx context.Context, n int) ([]models.LeaderboardEntry, error) {
	stop := int64(n - 1)
	if n <= 0 {
		stop = -1
	}
	zs, err := l.rc.ZRevRangeWithScores(ctx, leaderboardPointsKey, 0, stop).Result()
	if err != nil {
		return nil, err
	}
	if len(zs) == 0 {
		return []models.LeaderboardEntry{}, nil
	}
	members := make([]string, len(zs))
	for i, z := range zs {
		members[i], _ = z.Member.(string)
	}
	names, err := l.rc.HMGet(ctx, leaderboardNamesKey, members...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]models.LeaderboardEntry, 0, len(zs))
	for i, z := range zs {
		id, err := strconv.ParseUint(members[i], 10, 64)
		if err != nil {
			continue
		}
		name, _ := names[i].(string)
		out = append(out, models.LeaderboardEntry{UserID: uint(id), Name: name, Points: int(z.Score)})
	}
	return out, nil
}

func (l *RedisLeaderboard) Standing(ctx context.Context, userID uint) (models.Standing, error) {
	m := member(userID)
	rank, err := l.rc.ZRevRank(ctx, leaderboardPointsKey, m).Result()
	if errors.Is(err, redis.Nil) {
		return models.Standing{}, store.ErrNotFound
	}
	if err != nil {
		return models.Standing{}, err
	}
	score, err := l.rc.ZScore(ctx, leaderboardPointsKey, m).Result()
	if err != nil {
		return models.Standing{}, err
	}
	name, err := l.rc.HGet(ctx, leaderboardNamesKey, m).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return models.Standing{}, err
	}
	return models.Standing{
		Rank:  int(rank) + 1,
		Entry: models.LeaderboardEntry{UserID: userID, Name: name, Points: int(score)},
	}, nil
}
