// Package middleware содержит HTTP middleware движка кошельков.
package middleware

import (
	"context"
	"net/http"
	"strconv"
)

type contextKey string

const (
	userIDKey  contextKey = "userID"
	adminIDKey contextKey = "adminID"
)

// Заголовки, которые выставляет шлюз после проверки личности вызывающего.
const (
	UserIDHeader  = "X-User-ID"
	AdminIDHeader = "X-Admin-ID"
)

// UserIdentity кладёт в контекст идентификатор пользователя из заголовка X-User-ID.
// Аутентификацию выполняет шлюз, здесь проверяется только формат.
func UserIdentity(next http.Handler) http.Handler {
	return identity(UserIDHeader, userIDKey, next)
}

// AdminIdentity кладёт в контекст идентификатор администратора из заголовка X-Admin-ID.
func AdminIdentity(next http.Handler) http.Handler {
	return identity(AdminIDHeader, adminIDKey, next)
}

func identity(header string, key contextKey, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.Header.Get(header), 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), key, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserIDFromContext извлекает идентификатор пользователя из контекста запроса.
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}

// GetAdminIDFromContext извлекает идентификатор администратора из контекста запроса.
func GetAdminIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(adminIDKey).(int64)
	return id, ok
}
