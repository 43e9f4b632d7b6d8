package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scoutworks/deepscout/internal/research"
)

const searchKeyPrefix = "deepscout:search:"

// Conn dials redis and verifies connectivity with a ping.
func Conn(ctx context.Context, host, port, pass string, db int, timeout time.Duration) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%s", host, port),
		DialTimeout: timeout,
		Password:    pass,
		DB:          db,
	})

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, err
	}
	if pong != "PONG" {
		return nil, fmt.Errorf("expected PONG, got %s", pong)
	}

	return client, nil
}

// SearchCache keeps search provider responses in redis so repeated
// branches with the same query skip the provider round trip.
type SearchCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSearchCache(client *redis.Client, ttl time.Duration) *SearchCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SearchCache{client: client, ttl: ttl}
}

func searchKey(query, lang string, k int) string {
	sum := sha1.Sum([]byte(query + "\x00" + lang + "\x00" + strconv.Itoa(k)))
	return searchKeyPrefix + hex.EncodeToString(sum[:])
}

// Get returns the cached results for a query, or (nil, false) on miss.
func (c *SearchCache) Get(ctx context.Context, query, lang string, k int) ([]research.SearchResult, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	val, err := c.client.Get(ctx, searchKey(query, lang, k)).Result()
	if err != nil {
		return nil, false
	}
	var results []research.SearchResult
	if err := json.Unmarshal([]byte(val), &results); err != nil {
		return nil, false
	}
	return results, true
}

// Put stores results under the query key. Failures are returned so the
// caller can log them; a failed write never blocks the research run.
func (c *SearchCache) Put(ctx context.Context, query, lang string, k int, results []research.SearchResult) error {
	if c == nil || c.client == nil {
		return nil
	}
	data, err := json.Marshal(results)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, searchKey(query, lang, k), data, c.ttl).Err(); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	return nil
}
