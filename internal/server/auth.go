package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"chartline/internal/domain"
)

// Dev headers carry a viewer identity without a token when AllowDevHeaders is set.
const (
	headerViewerID   = "X-Viewer-Id"
	headerViewerRole = "X-Viewer-Role"
	headerViewerName = "X-Viewer-Name"
	headerOrgID      = "X-Org-Id"
)

type AuthConfig struct {
	JWTSecret       string
	AllowDevHeaders bool
	Logger          *zap.Logger
}

type viewerKey struct{}

func (c AuthConfig) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}

func withViewer(ctx context.Context, v domain.Viewer, source string) context.Context {
	return context.WithValue(ctx, viewerKey{}, principal{Viewer: v, Source: source})
}

type principal struct {
	Viewer domain.Viewer
	Source string
}

func principalFromContext(ctx context.Context) (principal, bool) {
	p, ok := ctx.Value(viewerKey{}).(principal)
	return p, ok && p.Viewer.ID != ""
}

func viewerFromContext(ctx context.Context) (domain.Viewer, huma.StatusError) {
	if p, ok := principalFromContext(ctx); ok {
		return p.Viewer, nil
	}
	return domain.Viewer{}, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

type jwtClaims struct {
	jwt.RegisteredClaims
	OrgID string `json:"org_id"`
	Role  string `json:"role,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

func authenticateJWT(token string, secret string) (domain.Viewer, error) {
	if strings.TrimSpace(secret) == "" {
		return domain.Viewer{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwtClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return domain.Viewer{}, err
	}
	if !parsed.Valid {
		return domain.Viewer{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return domain.Viewer{}, errors.New("subject claim required")
	}
	if claims.OrgID == "" {
		return domain.Viewer{}, errors.New("org_id claim required")
	}
	return domain.Viewer{
		ID:    claims.Subject,
		OrgID: claims.OrgID,
		Role:  claims.Role,
		Name:  claims.Name,
		Email: claims.Email,
	}, nil
}

// SignToken mints an HS256 token for v. It backs the dev login endpoint and the CLI.
func SignToken(secret string, v domain.Viewer, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	now := time.Now()
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  v.ID,
			IssuedAt: jwt.NewNumericDate(now),
		},
		OrgID: v.OrgID,
		Role:  v.Role,
		Name:  v.Name,
		Email: v.Email,
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// newAuthMiddleware attaches the caller's viewer to the request context. Requests without
// credentials pass through anonymously; operations that need a viewer reject them.
func newAuthMiddleware(basePath string, cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}

			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			devViewer := strings.TrimSpace(req.Header.Get(headerViewerID))

			if authz != "" {
				token, ok := bearerToken(authz)
				if !ok {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				v, err := authenticateJWT(token, cfg.JWTSecret)
				if err != nil {
					cfg.logger().Debug("jwt rejected", zap.Error(err))
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				next.ServeHTTP(w, req.WithContext(withViewer(req.Context(), v, "jwt")))
				return
			}

			if devViewer != "" && cfg.AllowDevHeaders {
				v := domain.Viewer{
					ID:    devViewer,
					OrgID: strings.TrimSpace(req.Header.Get(headerOrgID)),
					Role:  strings.TrimSpace(req.Header.Get(headerViewerRole)),
					Name:  strings.TrimSpace(req.Header.Get(headerViewerName)),
				}
				cfg.logger().Debug("dev header identity", zap.String("viewer_id", v.ID), zap.String("org_id", v.OrgID))
				next.ServeHTTP(w, req.WithContext(withViewer(req.Context(), v, "dev_header")))
				return
			}

			next.ServeHTTP(w, req)
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
