package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

var (
	// ErrUnauthenticated — токен отсутствует, подделан или истёк.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrSecretRequired — не задан ключ подписи.
	ErrSecretRequired = errors.New("jwt secret is required")
)

// Claims — полезная нагрузка токена: subject и роли пользователя.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.StandardClaims
}

// Tokens выпускает и проверяет HS256-токены внешнего провайдера идентичности.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens создаёт валидатор токенов.
func NewTokens(secret string, ttl time.Duration) (*Tokens, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrSecretRequired
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue выпускает токен. Используется в тестах и служебных утилитах.
func (t *Tokens) Issue(userID string, roles ...domain.Role) (string, error) {
	if userID == "" {
		return "", domain.ErrUserIDRequired
	}
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, string(role))
	}

	now := t.now()
	claims := &Claims{
		Roles: names,
		StandardClaims: jwt.StandardClaims{
			Subject:   userID,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(t.ttl).Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Parse проверяет подпись и срок действия и возвращает вызывающего.
func (t *Tokens) Parse(raw string) (domain.Caller, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return domain.Caller{}, fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	}
	if claims.Subject == "" {
		return domain.Caller{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}

	caller := domain.Caller{UserID: claims.Subject, Roles: make([]domain.Role, 0, len(claims.Roles))}
	for _, name := range claims.Roles {
		role, err := domain.ParseRole(name)
		if err != nil {
			return domain.Caller{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
		}
		caller.Roles = append(caller.Roles, role)
	}
	return caller, nil
}

// CallerFromHeader разбирает значение "Bearer <token>". Пустой заголовок даёт
// анонимного вызывающего: публичный каталог доступен без входа.
func (t *Tokens) CallerFromHeader(header string) (domain.Caller, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return domain.Anonymous(), nil
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return domain.Caller{}, fmt.Errorf("%w: malformed authorization header", ErrUnauthenticated)
	}
	return t.Parse(strings.TrimSpace(token))
}

type callerKey struct{}

// WithCaller кладёт вызывающего в контекст запроса.
func WithCaller(ctx context.Context, caller domain.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom достаёт вызывающего из контекста; без него — анонимный.
func CallerFrom(ctx context.Context) domain.Caller {
	if caller, ok := ctx.Value(callerKey{}).(domain.Caller); ok {
		return caller
	}
	return domain.Anonymous()
}
