package project

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/garyburd/redigo/redis"
	"github.com/golang/groupcache/lru"
)

const redisKeyPrefix = "rdm:project:"

// RedisStore persists project records in Redis, with a small
// process-local LRU in front of GET so a Load of a record this process
// already saved or loaded skips the round trip.
type RedisStore struct {
	pool  *redis.Pool
	mu    sync.Mutex
	cache *lru.Cache
}

// NewRedisStore dials addr (host:port) lazily via a connection pool.
func NewRedisStore(addr string) *RedisStore {
	pool := &redis.Pool{
		MaxIdle:   8,
		MaxActive: 32,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", addr)
		},
	}
	return &RedisStore{pool: pool, cache: lru.New(256)}
}

func (s *RedisStore) key(project string) string { return redisKeyPrefix + project }

func (s *RedisStore) Load(project string) (Record, error) {
	s.mu.Lock()
	if cached, ok := s.cache.Get(project); ok {
		s.mu.Unlock()
		return cached.(Record), nil
	}
	s.mu.Unlock()

	conn := s.pool.Get()
	defer conn.Close()

	data, err := redis.Bytes(conn.Do("GET", s.key(project)))
	if err == redis.ErrNil {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("project: redis get %s: %w", project, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("project: redis decode %s: %w", project, err)
	}

	s.mu.Lock()
	s.cache.Add(project, rec)
	s.mu.Unlock()
	return rec, nil
}

func (s *RedisStore) Save(project string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("project: redis encode %s: %w", project, err)
	}

	conn := s.pool.Get()
	defer conn.Close()
	if _, err := conn.Do("SET", s.key(project), data); err != nil {
		return fmt.Errorf("project: redis set %s: %w", project, err)
	}

	s.mu.Lock()
	s.cache.Add(project, rec)
	s.mu.Unlock()
	return nil
}

func (s *RedisStore) Delete(project string) error {
	conn := s.pool.Get()
	defer conn.Close()
	if _, err := conn.Do("DEL", s.key(project)); err != nil {
		return fmt.Errorf("project: redis del %s: %w", project, err)
	}

	s.mu.Lock()
	s.cache.Remove(project)
	s.mu.Unlock()
	return nil
}

func (s *RedisStore) Close() error {
	return s.pool.Close()
}
