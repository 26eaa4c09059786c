// Package repository はセッションレコードの永続化実装を提供する。
package repository

import (
	"context"
	"time"
)

// SessionRepository はセッションレコードの永続化インターフェース。
// session.RecordRepository を満たし、加えて期限切れレコードの一括削除を提供する。
type SessionRepository interface {
	// Put はレコードを作成または上書きする。
	Put(ctx context.Context, id string, data []byte, expiresAt time.Time) error
	// Get は指定IDのレコードを取得する。存在しない・期限切れの場合はnilを返す。
	Get(ctx context.Context, id string) ([]byte, error)
	// Delete は指定IDのレコードを削除する。
	Delete(ctx context.Context, id string) error
	// DeleteExpired は期限切れレコードを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
