// Package middleware содержит HTTP middleware сервиса виртуальных питомцев.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const ownerIDKey contextKey = "ownerID"

const (
	ownerCookieName = "owner_token"
	ownerCookieTTL  = 365 * 24 * time.Hour
)

// OwnerMiddleware определяет владельца по подписанному cookie.
// Если cookie нет или подпись неверна, выдаётся новый идентификатор владельца.
type OwnerMiddleware struct {
	secretKey []byte
}

// NewOwnerMiddleware создаёт OwnerMiddleware с указанным секретом.
// Пустой секрет заменяется случайным: cookie будут действительны до перезапуска.
func NewOwnerMiddleware(secret string) *OwnerMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &OwnerMiddleware{
		secretKey: key,
	}
}

// Middleware кладёт идентификатор владельца в контекст запроса.
func (m *OwnerMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := m.OwnerFromRequest(r)
		if !ok {
			ownerID = uuid.NewString()
			m.SetOwnerCookie(w, ownerID)
		}

		ctx := WithOwnerID(r.Context(), ownerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OwnerFromRequest проверяет cookie владельца и возвращает его идентификатор.
func (m *OwnerMiddleware) OwnerFromRequest(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(ownerCookieName)
	if err != nil {
		return "", false
	}
	return m.parseCookie(cookie.Value)
}

// SetOwnerCookie устанавливает подписанный cookie владельца.
func (m *OwnerMiddleware) SetOwnerCookie(w http.ResponseWriter, ownerID string) {
	cookie := &http.Cookie{
		Name:     ownerCookieName,
		Value:    ownerID + "." + m.sign(ownerID),
		Path:     "/",
		Expires:  time.Now().Add(ownerCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	http.SetCookie(w, cookie)
}

func (m *OwnerMiddleware) sign(ownerID string) string {
	mac := hmac.New(sha256.New, m.secretKey)
	mac.Write([]byte(ownerID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (m *OwnerMiddleware) parseCookie(value string) (string, bool) {
	ownerID, signature, found := strings.Cut(value, ".")
	if !found || ownerID == "" {
		return "", false
	}

	if !hmac.Equal([]byte(signature), []byte(m.sign(ownerID))) {
		return "", false
	}

	if _, err := uuid.Parse(ownerID); err != nil {
		return "", false
	}

	return ownerID, true
}

// WithOwnerID возвращает контекст с идентификатором владельца.
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerIDKey, ownerID)
}

// GetOwnerIDFromContext извлекает идентификатор владельца из контекста запроса.
func GetOwnerIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ownerIDKey).(string)
	return id, ok && id != ""
}
