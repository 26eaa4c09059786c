package session

import (
	"context"
	"sync"
	"time"
)

type memoryRecord struct {
	data      []byte
	expiresAt time.Time
}

// MemoryRepository はプロセス内マップによるRecordRepository。
// テストと単一ノードの開発環境向け。
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
	now     func() time.Time
}

// NewMemoryRepository はMemoryRepositoryを生成する。
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[string]memoryRecord),
		now:     time.Now,
	}
}

// Put はレコードを保存する。
func (r *MemoryRepository) Put(_ context.Context, id string, data []byte, expiresAt time.Time) error {
	cp := make([]byte, len(data))
	copy(cp, data)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[id] = memoryRecord{data: cp, expiresAt: expiresAt}
	return nil
}

// Get はレコードを返す。期限切れの場合は nil。
func (r *MemoryRepository) Get(_ context.Context, id string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok || !r.now().Before(rec.expiresAt) {
		return nil, nil
	}
	return rec.data, nil
}

// Delete はレコードを削除する。
func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, id)
	return nil
}

// DeleteExpired は期限切れレコードを削除し、削除件数を返す。
func (r *MemoryRepository) DeleteExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var n int64
	for id, rec := range r.records {
		if !now.Before(rec.expiresAt) {
			delete(r.records, id)
			n++
		}
	}
	return n, nil
}

// Len は保持しているレコード数を返す。
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
