package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// TenantContext tenant id, извлечённый один раз на границе доверия
// Дальше по стеку он только передаётся, никогда не выводится заново
// из данных запроса
type TenantContext struct {
	TenantID string
	Subject  string // идентификатор агента/сессии из токена
}

var (
	ErrNoToken      = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrNoTenant     = errors.New("token has no tenant claim")
)

// Resolver проверяет подписанный credential и извлекает tenant claim
// Другой identity-логики здесь нет: выдача токенов — внешний collaborator
type Resolver struct {
	secret []byte
}

func NewResolver(secret string) *Resolver {
	return &Resolver{secret: []byte(secret)}
}

type tenantClaims struct {
	TenantID string `json:"tid"`
	jwt.RegisteredClaims
}

// Resolve проверяет подпись и срок токена, возвращает TenantContext
func (r *Resolver) Resolve(tokenString string) (*TenantContext, error) {
	if tokenString == "" {
		return nil, ErrNoToken
	}

	var claims tenantClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return r.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))

	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.TenantID == "" {
		return nil, ErrNoTenant
	}

	return &TenantContext{
		TenantID: claims.TenantID,
		Subject:  claims.Subject,
	}, nil
}

type ctxKey struct{}

// WithTenant кладёт TenantContext в context запроса
func WithTenant(ctx context.Context, tc *TenantContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// FromContext достаёт TenantContext; ok=false если middleware не отработал
func FromContext(ctx context.Context) (*TenantContext, bool) {
	tc, ok := ctx.Value(ctxKey{}).(*TenantContext)
	return tc, ok
}
