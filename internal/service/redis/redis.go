// Package redis caches admin chat state: the hex form of each shared chat
// key and the transcript fetched so far. Both can be rebuilt from the relay
// network, so losing the cache only costs a refetch.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"p2p_trade/internal/cryptographic/dh"
	"p2p_trade/internal/model"

	"github.com/redis/go-redis/v9"
)

const keyIndex = "chatkeys"

type (
	RedisService struct {
		rdb *redis.Client
	}
)

func NewRedis(rdb *redis.Client) *RedisService {
	return &RedisService{
		rdb: rdb,
	}
}

func chatKeyKey(disputeID string, party model.Party) string {
	return fmt.Sprintf("chatkey:%s:%s", disputeID, party)
}

func chatLogKey(disputeID string, party model.Party) string {
	return fmt.Sprintf("chatlog:%s:%s", disputeID, party)
}

// PutKey stores the shared key for one side of a dispute and indexes it.
func (r *RedisService) PutKey(ctx context.Context, k *model.SharedChatKey) error {
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, chatKeyKey(k.DisputeID, k.Party), k.Hex(), 0)
		p.SAdd(ctx, keyIndex, k.DisputeID+":"+string(k.Party))
		return nil
	})
	return err
}

// GetKey returns nil, nil when no key is cached.
func (r *RedisService) GetKey(ctx context.Context, disputeID string, party model.Party) (*model.SharedChatKey, error) {
	v, err := r.rdb.Get(ctx, chatKeyKey(disputeID, party)).Result()
	if err == redis.Nil {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	priv, err := dh.PrivKeyFromHex(v)
	if err != nil {
		return nil, fmt.Errorf("cached chat key %s/%s: %w", disputeID, party, err)
	}
	return &model.SharedChatKey{DisputeID: disputeID, Party: party, Private: priv}, nil
}

// Keys lists every cached key.
func (r *RedisService) Keys(ctx context.Context) ([]*model.SharedChatKey, error) {
	members, err := r.rdb.SMembers(ctx, keyIndex).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*model.SharedChatKey, 0, len(members))
	for _, m := range members {
		i := strings.LastIndexByte(m, ':')
		if i < 0 {
			continue
		}
		k, err := r.GetKey(ctx, m[:i], model.Party(m[i+1:]))
		if err != nil {
			return nil, err
		}
		if k != nil {
			out = append(out, k)
		}
	}
	return out, nil
}

func (r *RedisService) DeleteKey(ctx context.Context, disputeID string, party model.Party) error {
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, chatKeyKey(disputeID, party), chatLogKey(disputeID, party))
		p.SRem(ctx, keyIndex, disputeID+":"+string(party))
		return nil
	})
	return err
}

func (r *RedisService) AppendMessages(ctx context.Context, disputeID string, party model.Party, msgs ...model.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	values := make([]any, 0, len(msgs))
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		values = append(values, data)
	}
	return r.rdb.RPush(ctx, chatLogKey(disputeID, party), values...).Err()
}

func (r *RedisService) Messages(ctx context.Context, disputeID string, party model.Party) ([]model.ChatMessage, error) {
	raw, err := r.rdb.LRange(ctx, chatLogKey(disputeID, party), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	out := make([]model.ChatMessage, 0, len(raw))
	for _, v := range raw {
		var m model.ChatMessage
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
