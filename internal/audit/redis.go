// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/domain"
	"github.com/go-redis/redis/v8"
)

const DefaultRedisKey = "chain-orchestrator:audit"

// appendScript takes the next sequence number and pushes the entry wrapped
// in a record carrying it, in one step so list order always matches seq.
var appendScript = redis.NewScript(`
local seq = redis.call('INCR', KEYS[2])
redis.call('RPUSH', KEYS[1], '{"seq":' .. seq .. ',"entry":' .. ARGV[1] .. '}')
return seq
`)

// redisRecord is one element of the audit list.
type redisRecord struct {
	Seq   int64             `json:"seq"`
	Entry domain.AuditEntry `json:"entry"`
}

// RedisStore appends audit entries to a single Redis list. The sequence
// number comes from an INCR counter next to the list.
type RedisStore struct {
	client *redis.Client
	key    string
	logger *slog.Logger
}

func NewRedisStore(client *redis.Client, key string, logger *slog.Logger) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RedisStore{
		client: client,
		key:    key,
		logger: logger,
	}
}

func (s *RedisStore) seqKey() string {
	return s.key + ":seq"
}

func (s *RedisStore) Append(ctx context.Context, entry domain.AuditEntry) (domain.AuditEntry, error) {
	entry.Seq = 0
	payload, err := json.Marshal(entry)
	if err != nil {
		return domain.AuditEntry{}, err
	}

	seq, err := appendScript.Run(ctx, s.client, []string{s.key, s.seqKey()}, payload).Int64()
	if err != nil {
		s.logger.Error("redis audit append failed",
			"execution_id", entry.ExecutionID,
			"step_id", entry.StepID,
			"error", err,
		)
		return domain.AuditEntry{}, err
	}
	entry.Seq = seq
	return entry, nil
}

func (s *RedisStore) Query(ctx context.Context, executionID string) ([]domain.AuditEntry, error) {
	raw, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		s.logger.Error("redis audit range failed", "execution_id", executionID, "error", err)
		return nil, err
	}

	out := make([]domain.AuditEntry, 0, len(raw))
	for _, item := range raw {
		var rec redisRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			s.logger.Warn("skipping undecodable audit entry", "error", err)
			continue
		}
		rec.Entry.Seq = rec.Seq
		if executionID == "" || rec.Entry.ExecutionID == executionID {
			out = append(out, rec.Entry)
		}
	}
	return out, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key, s.seqKey()).Err()
}
