package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/domain"
)

type contextKey string

const (
	// ContextKeyActor is the key for storing the actor id in request context.
	ContextKeyActor contextKey = "actor"
)

// DefaultIssuer is the iss claim of tokens issued by this service.
const DefaultIssuer = "taskflow"

// EmployeeLookup resolves the token subject.
type EmployeeLookup interface {
	GetEmployee(ctx context.Context, employeeID string) (*domain.Employee, error)
}

// AuthMiddleware handles Bearer JWT authentication. The token subject is the
// employee id.
type AuthMiddleware struct {
	signingKey []byte
	issuer     string
	employees  EmployeeLookup
}

// NewAuthMiddleware creates a new AuthMiddleware.
func NewAuthMiddleware(signingKey, issuer string, employees EmployeeLookup) *AuthMiddleware {
	if issuer == "" {
		issuer = DefaultIssuer
	}
	return &AuthMiddleware{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		employees:  employees,
	}
}

// IssueToken signs an HS256 token for an employee.
func (m *AuthMiddleware) IssueToken(employeeID string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   employeeID,
		Issuer:    m.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	})

	signed, err := token.SignedString(m.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses a token and returns its subject.
func (m *AuthMiddleware) ValidateToken(tokenString string) (string, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return m.signingKey, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("%w: token has expired", domain.ErrInvalidToken)
		}
		return "", domain.ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return "", domain.ErrInvalidToken
	}
	return claims.Subject, nil
}

// Authenticate validates the Bearer token and adds the actor id to request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "missing authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
			http.Error(w, "invalid authorization header format", http.StatusUnauthorized)
			return
		}

		actorID, err := m.ValidateToken(parts[1])
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		if m.employees != nil {
			employee, err := m.employees.GetEmployee(r.Context(), actorID)
			if err != nil {
				if errors.Is(err, domain.ErrEmployeeNotFound) {
					http.Error(w, "unknown employee", http.StatusUnauthorized)
					return
				}
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
			if !employee.IsActive {
				http.Error(w, "employee inactive", http.StatusUnauthorized)
				return
			}
		}

		ctx := context.WithValue(r.Context(), ContextKeyActor, actorID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithActor returns a context carrying an authenticated actor id.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, ContextKeyActor, actorID)
}

// GetActorIDFromContext retrieves the authenticated actor id from request context.
func GetActorIDFromContext(ctx context.Context) (string, error) {
	actorID, ok := ctx.Value(ContextKeyActor).(string)
	if !ok || actorID == "" {
		return "", domain.ErrInvalidToken
	}
	return actorID, nil
}
