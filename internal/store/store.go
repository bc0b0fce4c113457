// Package store keeps a local record of chat and search conversations so the
// terminal client can list and reopen them.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chorus/internal/config"
	"chorus/internal/models"
)

var ErrChatNotFound = errors.New("store: chat not found")

// previewLen caps the stored last-prompt preview, in runes.
const previewLen = 200

type Store interface {
	CreateChat(ctx context.Context, mode models.AppMode) (string, error)
	// AppendMessage adds a transcript entry and bumps the chat's update time.
	// User messages also replace the last prompt preview.
	AppendMessage(ctx context.Context, chatID, role, content string) error
	// RecentChats returns the total chat count and one page ordered by most
	// recent update.
	RecentChats(ctx context.Context, limit, offset int) (int, []models.ChatListItem, error)
	ChatMessages(ctx context.Context, chatID string) ([]models.Message, error)
	DeleteChat(ctx context.Context, chatID string) error
	Close() error
}

// Open builds the store selected by cfg.Driver. The "none" driver returns a
// nil Store.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		s, err := OpenSQLite(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return s, nil
	case "redis":
		s, err := OpenRedis(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "none":
		return nil, nil
	}
	return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
}

func preview(prompt string) string {
	prompt = strings.Join(strings.Fields(prompt), " ")
	r := []rune(prompt)
	if len(r) > previewLen {
		return string(r[:previewLen])
	}
	return prompt
}

func unixNow() int64 { return time.Now().Unix() }
