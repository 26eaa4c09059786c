// Package viewcache はセッション主体ごとに生成済みビュー（連絡先一覧、プロフィール）を
// 一定時間保持するキャッシュを提供する。
// セッションが作成・更新・破棄されるとsession.Invalidator経由で該当主体のエントリが消える。
package viewcache

import (
	"sync"
	"time"
)

// View はキャッシュ対象のビュー種別。
type View string

const (
	// ViewContacts は連絡先一覧。
	ViewContacts View = "contacts"
	// ViewProfile はプロフィール画面の初期値。
	ViewProfile View = "profile"
)

type key struct {
	subjectID string
	view      View
}

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache は主体×ビュー単位のTTLキャッシュ。
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[key]entry
	now     func() time.Time
}

// New はCacheを生成する。ttlが0以下の場合はキャッシュしない。
func New(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[key]entry),
		now:     time.Now,
	}
}

// Get はキャッシュ済みの値を返す。期限切れまたは未登録の場合は false。
func (c *Cache) Get(subjectID string, view View) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key{subjectID, view}]
	c.mu.RUnlock()

	if !ok || !c.now().Before(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// Set は値を保存する。
func (c *Cache) Set(subjectID string, view View, value any) {
	if c.ttl <= 0 || subjectID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key{subjectID, view}] = entry{value: value, expiresAt: c.now().Add(c.ttl)}
}

// Invalidate は主体の全ビューを削除する。
func (c *Cache) Invalidate(subjectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k := range c.entries {
		if k.subjectID == subjectID {
			delete(c.entries, k)
		}
	}
}

// Purge は期限切れエントリを削除し、削除件数を返す。
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len は保持しているエントリ数を返す。テストおよびメトリクス用。
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// StartJanitor はintervalごとにPurgeを実行するゴルーチンを開始し、停止関数を返す。
func (c *Cache) StartJanitor(interval time.Duration) (stop func()) {
	if interval <= 0 {
		return func() {}
	}

	stopCh := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.Purge()
			case <-stopCh:
				return
			}
		}
	}()

	return func() { once.Do(func() { close(stopCh) }) }
}
