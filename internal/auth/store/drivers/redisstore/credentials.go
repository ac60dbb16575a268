// Package redisstore keeps refresh credentials in Redis. Users stay in the
// primary store; combine the two with store.WithCredentials.
//
// Only a single Redis node (or a primary with replicas) is supported. The
// delete and per-user revoke scripts derive record keys at run time, which
// Redis Cluster does not allow.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aussiebroadwan/quill/internal/auth/domain"
	"github.com/aussiebroadwan/quill/internal/auth/store"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key this backend writes.
const DefaultPrefix = "quill:"

const scanBatch = 200

// Record keys are <prefix>rt:<hash> hashes. Each user also has a set at
// <prefix>rtu:<userID> listing the hashes they own.

const createScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1],
  "id", ARGV[1],
  "userId", ARGV[2],
  "tokenHash", ARGV[3],
  "expiresAt", ARGV[4],
  "revoked", "0",
  "createdAt", ARGV[5])
redis.call("PEXPIREAT", KEYS[1], ARGV[4])
redis.call("SADD", KEYS[2], ARGV[3])
return 1
`

const consumeScript = `
local state = redis.call("HMGET", KEYS[1], "revoked", "expiresAt")
if not state[1] then
  return {}
end
if state[1] == "1" or tonumber(state[2]) <= tonumber(ARGV[1]) then
  return {}
end
redis.call("HSET", KEYS[1], "revoked", "1", "revokedAt", ARGV[1], "supersededBy", ARGV[2])
return redis.call("HGETALL", KEYS[1])
`

const revokeScript = `
local revoked = redis.call("HGET", KEYS[1], "revoked")
if not revoked then
  return 0
end
if revoked ~= "1" then
  redis.call("HSET", KEYS[1], "revoked", "1", "revokedAt", ARGV[1])
end
return 1
`

const deleteScript = `
local user = redis.call("HGET", KEYS[1], "userId")
if not user then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("SREM", ARGV[1] .. user, ARGV[2])
return 1
`

const revokeUserScript = `
local n = 0
for _, hash in ipairs(redis.call("SMEMBERS", KEYS[1])) do
  local key = ARGV[2] .. hash
  local state = redis.call("HMGET", key, "revoked", "expiresAt")
  if not state[1] then
    redis.call("SREM", KEYS[1], hash)
  elseif state[1] == "0" and tonumber(state[2]) > tonumber(ARGV[1]) then
    redis.call("HSET", key, "revoked", "1", "revokedAt", ARGV[1])
    n = n + 1
  end
end
return n
`

var (
	createLua     = redis.NewScript(createScript)
	consumeLua    = redis.NewScript(consumeScript)
	revokeLua     = redis.NewScript(revokeScript)
	deleteLua     = redis.NewScript(deleteScript)
	revokeUserLua = redis.NewScript(revokeUserScript)
)

// Store implements store.CredentialBackend on a single Redis node. Every
// state change runs as a Lua script so the check and the write are atomic.
type Store struct {
	rdb    *redis.Client
	prefix string
}

var _ store.CredentialBackend = (*Store)(nil)

// New wraps an existing single-node client. An empty prefix means
// DefaultPrefix.
func New(rdb *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix}
}

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(rdb, ""), nil
}

func (s *Store) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }
func (s *Store) Close() error                   { return s.rdb.Close() }

func (s *Store) recordPrefix() string { return s.prefix + "rt:" }
func (s *Store) userPrefix() string   { return s.prefix + "rtu:" }

func (s *Store) recordKey(hash string) string { return s.recordPrefix() + hash }
func (s *Store) userKey(userID string) string { return s.userPrefix() + userID }

func (s *Store) CreateCredential(ctx context.Context, c domain.Credential) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	ok, err := createLua.Run(ctx, s.rdb,
		[]string{s.recordKey(c.TokenHash), s.userKey(c.UserID)},
		c.ID, c.UserID, c.TokenHash, c.ExpiresAt.UnixMilli(), c.CreatedAt.UnixMilli(),
	).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return store.ErrAlreadyExists
	}
	return nil
}

func (s *Store) FindActiveCredential(ctx context.Context, hash string, now time.Time) (domain.Credential, error) {
	c, err := s.GetCredential(ctx, hash)
	if err != nil {
		return domain.Credential{}, err
	}
	if !c.Usable(now) {
		return domain.Credential{}, store.ErrNotFound
	}
	return c, nil
}

func (s *Store) ConsumeCredential(
	ctx context.Context,
	hash, successorID string,
	now time.Time,
) (domain.Credential, error) {
	raw, err := consumeLua.Run(ctx, s.rdb,
		[]string{s.recordKey(hash)},
		now.UnixMilli(), successorID,
	).StringSlice()
	if err != nil {
		return domain.Credential{}, err
	}
	if len(raw) == 0 {
		return domain.Credential{}, store.ErrNotFound
	}

	fields := make(map[string]string, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		fields[raw[i]] = raw[i+1]
	}
	return decodeCredential(fields)
}

func (s *Store) RevokeCredential(ctx context.Context, hash string, now time.Time) error {
	found, err := revokeLua.Run(ctx, s.rdb, []string{s.recordKey(hash)}, now.UnixMilli()).Int()
	if err != nil {
		return err
	}
	if found == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteCredential(ctx context.Context, hash string) (bool, error) {
	found, err := deleteLua.Run(ctx, s.rdb,
		[]string{s.recordKey(hash)},
		s.userPrefix(), hash,
	).Int()
	if err != nil {
		return false, err
	}
	return found == 1, nil
}

func (s *Store) GetCredential(ctx context.Context, hash string) (domain.Credential, error) {
	fields, err := s.rdb.HGetAll(ctx, s.recordKey(hash)).Result()
	if err != nil {
		return domain.Credential{}, err
	}
	if len(fields) == 0 {
		return domain.Credential{}, store.ErrNotFound
	}
	return decodeCredential(fields)
}

func (s *Store) RevokeUserCredentials(ctx context.Context, userID string, now time.Time) (int64, error) {
	return revokeUserLua.Run(ctx, s.rdb,
		[]string{s.userKey(userID)},
		now.UnixMilli(), s.recordPrefix(),
	).Int64()
}

// DeleteExpiredCredentials removes records whose expiry has passed but which
// Redis has not evicted yet, then prunes user sets of hashes that no longer
// resolve to a record.
func (s *Store) DeleteExpiredCredentials(ctx context.Context, now time.Time) (int64, error) {
	var deleted int64

	iter := s.rdb.Scan(ctx, 0, s.recordPrefix()+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := s.rdb.HGet(ctx, key, "expiresAt").Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return deleted, err
		}
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || ms > now.UnixMilli() {
			continue
		}
		hash := key[len(s.recordPrefix()):]
		found, err := s.DeleteCredential(ctx, hash)
		if err != nil {
			return deleted, err
		}
		if found {
			deleted++
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, err
	}

	return deleted, s.pruneUserSets(ctx)
}

func (s *Store) pruneUserSets(ctx context.Context) error {
	iter := s.rdb.Scan(ctx, 0, s.userPrefix()+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		setKey := iter.Val()
		hashes, err := s.rdb.SMembers(ctx, setKey).Result()
		if err != nil {
			return err
		}
		for _, hash := range hashes {
			n, err := s.rdb.Exists(ctx, s.recordKey(hash)).Result()
			if err != nil {
				return err
			}
			if n == 0 {
				if err := s.rdb.SRem(ctx, setKey, hash).Err(); err != nil {
					return err
				}
			}
		}
	}
	return iter.Err()
}

func decodeCredential(f map[string]string) (domain.Credential, error) {
	expiresAt, err := parseMillis(f["expiresAt"])
	if err != nil {
		return domain.Credential{}, fmt.Errorf("redisstore: corrupt expiresAt: %w", err)
	}
	createdAt, err := parseMillis(f["createdAt"])
	if err != nil {
		return domain.Credential{}, fmt.Errorf("redisstore: corrupt createdAt: %w", err)
	}

	c := domain.Credential{
		ID:           f["id"],
		UserID:       f["userId"],
		TokenHash:    f["tokenHash"],
		ExpiresAt:    expiresAt,
		Revoked:      f["revoked"] == "1",
		SupersededBy: f["supersededBy"],
		CreatedAt:    createdAt,
	}
	if v := f["revokedAt"]; v != "" {
		if c.RevokedAt, err = parseMillis(v); err != nil {
			return domain.Credential{}, fmt.Errorf("redisstore: corrupt revokedAt: %w", err)
		}
	}
	return c, nil
}

func parseMillis(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
