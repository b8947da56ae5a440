// internal/storage/redis.go
// Redis implementation of StatisticsStore. Counters live in a hash per key,
// visitor membership in a set and first-seen order in a list.
package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/julioonmartinez/lulinks-api/internal/model"
	"github.com/redis/go-redis/v9"
)

// recordScript performs the statistics merge in one server-side step and
// returns the merged hash and visitor order as they stood after this event.
// KEYS: hash, visitor set, visitor order list
// ARGV: counter field, visitor id, timestamp, profile id, widget id, new record id
var recordScript = redis.NewScript(`
if redis.call('HSETNX', KEYS[1], 'createdAt', ARGV[3]) == 1 then
  redis.call('HSET', KEYS[1], 'id', ARGV[6], 'profileId', ARGV[4], 'widgetId', ARGV[5], 'views', 0, 'clicks', 0, 'uniqueViews', 0)
end
redis.call('HINCRBY', KEYS[1], ARGV[1], 1)
if ARGV[2] ~= '' and redis.call('SADD', KEYS[2], ARGV[2]) == 1 then
  redis.call('HINCRBY', KEYS[1], 'uniqueViews', 1)
  redis.call('RPUSH', KEYS[3], ARGV[2])
end
redis.call('HSET', KEYS[1], 'updatedAt', ARGV[3])
return {redis.call('HGETALL', KEYS[1]), redis.call('LRANGE', KEYS[3], 0, -1)}
`)

// RedisStatistics stores statistics counters in Redis.
type RedisStatistics struct {
	client *redis.Client
	prefix string
}

// RedisOption configures a RedisStatistics store.
type RedisOption func(*RedisStatistics)

// WithKeyPrefix namespaces every key written by the store.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStatistics) {
		s.prefix = prefix
	}
}

// NewRedisStatistics connects to Redis from a redis:// URL.
func NewRedisStatistics(ctx context.Context, url string, opts ...RedisOption) (*RedisStatistics, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewRedisStatisticsFromClient(client, opts...), nil
}

// NewRedisStatisticsFromClient wraps an existing client.
func NewRedisStatisticsFromClient(client *redis.Client, opts ...RedisOption) *RedisStatistics {
	s := &RedisStatistics{client: client, prefix: "lulinks:stats"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the redis client
func (s *RedisStatistics) Close() {
	s.client.Close()
}

// keys returns the hash, set and list keys for a composite key. The braces
// keep all three in one cluster slot so the script can touch them together.
// Components are base64url encoded, so neither the separator nor a brace
// in an id can make two keys collide.
func (s *RedisStatistics) keys(key model.StatisticsKey) (hash, members, order string) {
	base := fmt.Sprintf("%s:{%s.%s}", s.prefix,
		base64.RawURLEncoding.EncodeToString([]byte(key.ProfileID)),
		base64.RawURLEncoding.EncodeToString([]byte(key.WidgetID)))
	return base, base + ":visitors", base + ":order"
}

func (s *RedisStatistics) RecordStatistics(ctx context.Context, ev model.StatisticsEvent, now time.Time) (*model.Statistics, error) {
	hash, members, order := s.keys(ev.Key)
	reply, err := recordScript.Run(ctx, s.client,
		[]string{hash, members, order},
		string(ev.Kind), ev.VisitorID, now.UTC().Format(time.RFC3339Nano), ev.Key.ProfileID, ev.Key.WidgetID, NewID(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to record statistics: %w", err)
	}
	fields, ids, err := decodeScriptReply(reply)
	if err != nil {
		return nil, err
	}
	return decodeStatisticsHash(fields, ids)
}

// decodeScriptReply unpacks the {HGETALL, LRANGE} pair returned by recordScript
func decodeScriptReply(reply interface{}) (map[string]string, []string, error) {
	parts, ok := reply.([]interface{})
	if !ok || len(parts) != 2 {
		return nil, nil, fmt.Errorf("unexpected statistics script reply %T", reply)
	}
	flat, err := replyStrings(parts[0])
	if err != nil {
		return nil, nil, err
	}
	if len(flat)%2 != 0 {
		return nil, nil, fmt.Errorf("statistics hash reply has odd length %d", len(flat))
	}
	fields := make(map[string]string, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		fields[flat[i]] = flat[i+1]
	}
	ids, err := replyStrings(parts[1])
	if err != nil {
		return nil, nil, err
	}
	return fields, ids, nil
}

func replyStrings(v interface{}) ([]string, error) {
	items, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected statistics script element %T", v)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		str, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected statistics script value %T", item)
		}
		out = append(out, str)
	}
	return out, nil
}

func (s *RedisStatistics) GetStatistics(ctx context.Context, key model.StatisticsKey) (*model.Statistics, error) {
	hash, _, order := s.keys(key)

	pipe := s.client.Pipeline()
	fieldsCmd := pipe.HGetAll(ctx, hash)
	idsCmd := pipe.LRange(ctx, order, 0, -1)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get statistics: %w", err)
	}

	fields := fieldsCmd.Val()
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeStatisticsHash(fields, idsCmd.Val())
}

// decodeStatisticsHash converts the stored hash into a record
func decodeStatisticsHash(fields map[string]string, ids []string) (*model.Statistics, error) {
	s := &model.Statistics{
		ID:        fields["id"],
		ProfileID: fields["profileId"],
		WidgetID:  fields["widgetId"],
		UniqueIDs: append([]string{}, ids...),
	}

	var err error
	if s.Views, err = parseCounter(fields, "views"); err != nil {
		return nil, err
	}
	if s.Clicks, err = parseCounter(fields, "clicks"); err != nil {
		return nil, err
	}
	if s.UniqueViews, err = parseCounter(fields, "uniqueViews"); err != nil {
		return nil, err
	}
	if s.CreatedAt, err = time.Parse(time.RFC3339Nano, fields["createdAt"]); err != nil {
		return nil, fmt.Errorf("invalid createdAt in statistics hash: %w", err)
	}
	if s.UpdatedAt, err = time.Parse(time.RFC3339Nano, fields["updatedAt"]); err != nil {
		return nil, fmt.Errorf("invalid updatedAt in statistics hash: %w", err)
	}
	return s, nil
}

func parseCounter(fields map[string]string, name string) (int64, error) {
	v, ok := fields[name]
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s in statistics hash: %w", name, err)
	}
	return n, nil
}
