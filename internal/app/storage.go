package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/contactdesk/internal/config"
	"github.com/hitoshi/contactdesk/internal/database"
	"github.com/hitoshi/contactdesk/internal/handler"
	"github.com/hitoshi/contactdesk/internal/repository"
	"github.com/hitoshi/contactdesk/internal/session"
	"github.com/hitoshi/contactdesk/internal/worker/cleanup"
)

// sessionStorage はSESSION_BACKENDに応じて組み立てたセッションの保存先。
type sessionStorage struct {
	Backend session.Backend
	// Purger は期限切れレコードを削除する。Cookieバックエンドではnil。
	Purger cleanup.ExpiredPurger
	// Health は/healthで疎通を確認する対象。外部ストアを使わない場合はnil。
	Health handler.HealthChecker

	closers []func() error
}

// Close は開いた接続をすべて閉じる。
func (s *sessionStorage) Close() {
	for _, c := range s.closers {
		if err := c(); err != nil {
			slog.Warn("セッションストアのクローズに失敗しました", slog.String("error", err.Error()))
		}
	}
}

// redisPinger はredisクライアントをHealthCheckerとして使うためのアダプタ。
type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) PingContext(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// openSessionStorage は設定に応じてセッションのバックエンドを開く。
func openSessionStorage(ctx context.Context, cfg *config.Config) (*sessionStorage, error) {
	switch cfg.SessionBackend {
	case config.SessionBackendPostgres:
		db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig())
		if err != nil {
			return nil, err
		}
		if err := database.Ping(ctx, db, 5*time.Second); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established")

		repo := repository.NewPostgresSessionRepo(db)
		return &sessionStorage{
			Backend: session.NewRecordBackend(repo),
			Purger:  repo,
			Health:  db,
			closers: []func() error{db.Close},
		}, nil

	case config.SessionBackendRedis:
		client, err := database.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		slog.Info("redis connection established")

		repo := repository.NewRedisSessionRepo(client)
		return &sessionStorage{
			Backend: session.NewRecordBackend(repo),
			Purger:  repo,
			Health:  redisPinger{client: client},
			closers: []func() error{client.Close},
		}, nil

	case config.SessionBackendMemory:
		repo := session.NewMemoryRepository()
		return &sessionStorage{
			Backend: session.NewRecordBackend(repo),
			Purger:  repo,
		}, nil

	default:
		codec, err := newCookieCodec(cfg)
		if err != nil {
			return nil, err
		}
		return &sessionStorage{Backend: session.NewCookieBackend(codec)}, nil
	}
}

// newCookieCodec はSESSION_CODECに応じたCookieコーデックを返す。
func newCookieCodec(cfg *config.Config) (session.Codec, error) {
	switch cfg.SessionCodec {
	case config.SessionCodecPlain:
		if cfg.IsProduction() {
			slog.Warn("本番環境で署名なしのセッションCookieが設定されています")
		}
		return session.NewPlainCodec(), nil
	case config.SessionCodecEncrypted:
		codec, err := session.NewEncryptedCodec([]byte(cfg.SessionSecret))
		if err != nil {
			return nil, fmt.Errorf("failed to create session codec: %w", err)
		}
		return codec, nil
	default:
		codec, err := session.NewSignedCodec([]byte(cfg.SessionSecret))
		if err != nil {
			return nil, fmt.Errorf("failed to create session codec: %w", err)
		}
		return codec, nil
	}
}
