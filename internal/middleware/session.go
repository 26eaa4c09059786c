// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/contactdesk/internal/model"
	"github.com/hitoshi/contactdesk/internal/session"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// NewSessionMiddleware はリクエストごとのセッションStoreを解決してコンテキストに格納するミドルウェアを返す。
// セッションが有効な場合は主体IDもコンテキストに注入する。未認証でもリクエストは通過させる。
func NewSessionMiddleware(manager *session.Manager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			store := manager.ForRequest(w, r)
			ctx := session.NewContext(r.Context(), store)

			if sess, ok := store.Read(ctx); ok {
				ctx = context.WithValue(ctx, userIDContextKey, sess.SubjectID)
				noteUserID(ctx, sess.SubjectID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSession は認証済みでないリクエストに401 Unauthorizedを返すミドルウェア。
// NewSessionMiddlewareの後に配置する。
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := UserIDFromContext(r.Context()); err != nil {
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過した認証済みリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
