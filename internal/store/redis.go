package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"chorus/internal/models"
)

const defaultRedisPrefix = "chorus"

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key. Defaults to "chorus".
	Prefix string
}

// RedisStore keeps each chat as a hash, its transcript as a list of JSON
// messages and an index of chats in a sorted set scored by update time.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	now    func() int64
}

var _ Store = (*RedisStore)(nil)

func OpenRedis(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix, now: unixNow}, nil
}

func (s *RedisStore) indexKey() string            { return s.prefix + ":chats" }
func (s *RedisStore) chatKey(id string) string     { return s.prefix + ":chat:" + id }
func (s *RedisStore) messagesKey(id string) string { return s.prefix + ":chat:" + id + ":messages" }

func (s *RedisStore) CreateChat(ctx context.Context, mode models.AppMode) (string, error) {
	id := uuid.NewString()
	now := s.now()

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.chatKey(id),
			"mode", mode.String(),
			"created_at", now,
			"updated_at", now,
			"last_user_prompt", "",
		)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(now), Member: id})
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *RedisStore) AppendMessage(ctx context.Context, chatID, role, content string) error {
	exists, err := s.rdb.Exists(ctx, s.chatKey(chatID)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrChatNotFound
	}

	payload, err := json.Marshal(models.Message{Role: role, Content: content})
	if err != nil {
		return err
	}
	now := s.now()

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, s.messagesKey(chatID), payload)
		if role == models.RoleUser {
			pipe.HSet(ctx, s.chatKey(chatID), "updated_at", now, "last_user_prompt", preview(content))
		} else {
			pipe.HSet(ctx, s.chatKey(chatID), "updated_at", now)
		}
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(now), Member: chatID})
		return nil
	})
	return err
}

func (s *RedisStore) RecentChats(ctx context.Context, limit, offset int) (int, []models.ChatListItem, error) {
	count, err := s.rdb.ZCard(ctx, s.indexKey()).Result()
	if err != nil {
		return 0, nil, err
	}
	if limit <= 0 {
		return int(count), []models.ChatListItem{}, nil
	}
	offset = max(offset, 0)

	ids, err := s.rdb.ZRevRange(ctx, s.indexKey(), int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return 0, nil, err
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.chatKey(id))
		}
		return nil
	})
	if err != nil {
		return 0, nil, err
	}

	items := make([]models.ChatListItem, 0, len(ids))
	for i, id := range ids {
		h := cmds[i].Val()
		if len(h) == 0 {
			continue
		}
		updated, _ := strconv.ParseInt(h["updated_at"], 10, 64)
		items = append(items, models.ChatListItem{
			ID:             id,
			Mode:           models.ParseAppMode(h["mode"]),
			UpdatedAtUnix:  updated,
			LastUserPrompt: h["last_user_prompt"],
		})
	}
	return int(count), items, nil
}

func (s *RedisStore) ChatMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	raw, err := s.rdb.LRange(ctx, s.messagesKey(chatID), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	msgs := make([]models.Message, 0, len(raw))
	for _, r := range raw {
		var m models.Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("decoding message of chat %s: %w", chatID, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (s *RedisStore) DeleteChat(ctx context.Context, chatID string) error {
	var del *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.chatKey(chatID))
		pipe.Del(ctx, s.messagesKey(chatID))
		pipe.ZRem(ctx, s.indexKey(), chatID)
		return nil
	})
	if err != nil {
		return err
	}
	if del.Val() == 0 {
		return ErrChatNotFound
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
