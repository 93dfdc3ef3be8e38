package common

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type contextKey string

const userIDKey contextKey = "user_id"

// WithUserID injects a verified identity into ctx.
func WithUserID(ctx context.Context, userID uint64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the identity placed by one of the auth middlewares.
func UserIDFromContext(ctx context.Context) (uint64, bool) {
	userID, ok := ctx.Value(userIDKey).(uint64)
	return userID, ok && userID != 0
}

// TokenFromRequest accepts "Authorization: Bearer <token>", the legacy
// "token" header, and a "token" query parameter for websocket upgrades.
func TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.Fields(header)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}
	if token := r.Header.Get("token"); token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}

// IdentifyRequest resolves the caller without rejecting anonymous requests.
func (m *JWTManager) IdentifyRequest(r *http.Request) (uint64, bool) {
	token := TokenFromRequest(r)
	if token == "" {
		return 0, false
	}
	claims, err := m.ValidToken(token)
	if err != nil {
		return 0, false
	}
	return claims.UserID, true
}

// AuthMiddleware rejects requests without a valid token and injects user_id into the request context.
func (m *JWTManager) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := m.IdentifyRequest(r)
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"message": "authorization required",
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// authStream overrides the context of a server stream
type authStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authStream) Context() context.Context {
	return s.ctx
}

// StreamAuthInterceptor reads "authorization: Bearer <token>" metadata and
// injects the identity into the stream context.
func (m *JWTManager) StreamAuthInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, stream grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if strings.HasPrefix(info.FullMethod, "/grpc.health.v1.Health/") ||
			strings.HasPrefix(info.FullMethod, "/grpc.reflection.") {
			return handler(srv, stream)
		}

		md, ok := metadata.FromIncomingContext(stream.Context())
		if !ok {
			return status.Error(codes.Unauthenticated, "missing metadata")
		}
		vals := md["authorization"]
		if len(vals) == 0 {
			return status.Error(codes.Unauthenticated, "authorization required")
		}
		parts := strings.Fields(vals[0])
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return status.Error(codes.Unauthenticated, "invalid auth header")
		}

		claims, err := m.ValidToken(parts[1])
		if err != nil {
			return status.Error(codes.Unauthenticated, "invalid or expired token")
		}

		return handler(srv, &authStream{
			ServerStream: stream,
			ctx:          WithUserID(stream.Context(), claims.UserID),
		})
	}
}
