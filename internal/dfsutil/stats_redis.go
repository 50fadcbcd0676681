package dfsutil

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/kestrelfs/dfs/dfs"
)

// RedisRecorder is a dfs.Recorder backed by Redis hashes instead of an
// in-process map, so several router processes behind the same shard set
// can share one counter view the way mobius's APIServer shares
// mobius:online across instances.
type RedisRecorder struct {
	client *redis.Client
	ctx    context.Context
}

const (
	redisKeyUploads   = "dfs:uploads"
	redisKeyDownloads = "dfs:downloads"
	redisKeyRemoves   = "dfs:removes"
	redisKeyBytes     = "dfs:bytes"
	redisKeySessions  = "dfs:sessions"
)

// NewRedisRecorder connects to a Redis server. The background context is
// used for every call since Recorder's interface has no per-call context.
func NewRedisRecorder(addr, password string, db int) *RedisRecorder {
	return &RedisRecorder{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		ctx:    context.Background(),
	}
}

func (r *RedisRecorder) IncUpload(ext dfs.Extension) {
	r.client.HIncrBy(r.ctx, redisKeyUploads, string(ext), 1)
}

func (r *RedisRecorder) IncDownload(ext dfs.Extension) {
	r.client.HIncrBy(r.ctx, redisKeyDownloads, string(ext), 1)
}

func (r *RedisRecorder) IncRemove(ext dfs.Extension) {
	r.client.HIncrBy(r.ctx, redisKeyRemoves, string(ext), 1)
}

func (r *RedisRecorder) AddBytes(ext dfs.Extension, n int64) {
	r.client.HIncrBy(r.ctx, redisKeyBytes, string(ext), n)
}

// IncSession bumps the lifetime session counter, mirroring
// dfs.MemRecorder's extra method of the same name.
func (r *RedisRecorder) IncSession() {
	r.client.Incr(r.ctx, redisKeySessions)
}

func (r *RedisRecorder) Snapshot() dfs.Stats {
	s := dfs.Stats{
		Uploads:   readHash(r, redisKeyUploads),
		Downloads: readHash(r, redisKeyDownloads),
		Removes:   readHash(r, redisKeyRemoves),
		Bytes:     readHash(r, redisKeyBytes),
	}
	s.Sessions, _ = r.client.Get(r.ctx, redisKeySessions).Int64()
	return s
}

func readHash(r *RedisRecorder, key string) map[dfs.Extension]int64 {
	out := make(map[dfs.Extension]int64)
	raw, err := r.client.HGetAll(r.ctx, key).Result()
	if err != nil {
		return out
	}
	for field, v := range raw {
		n, _ := strconv.ParseInt(v, 10, 64)
		out[dfs.Extension(field)] = n
	}
	return out
}
