package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/laserman120/discord-bridge/internal/config"
	"github.com/laserman120/discord-bridge/internal/intake"
	"github.com/laserman120/discord-bridge/internal/log"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/golang-jwt/jwt/v4"
)

const maxBody = 1 << 20

type claimsKey struct{}

// Pinger reports whether a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DepthFunc reports the number of queued tasks.
type DepthFunc func(ctx context.Context) (int64, error)

func SetupRouter(r chi.Router, cfg *config.Config, router *intake.Router, links Pinger, depth DepthFunc, logger *log.Logger) {
	logger = logger.Named("http")
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))
	r.Use(httprate.Limit(100, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := links.Ping(r.Context()); err != nil {
			logger.Errorw("Linkage store health check failed", "error", err)
			http.Error(w, "Linkage store unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("OK"))
	})

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(cfg.JWTSecret, logger))

		r.Post("/events", func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
			if err != nil {
				logger.Errorw("Failed to read request body", "error", err)
				http.Error(w, "Invalid request body", http.StatusBadRequest)
				return
			}
			events, err := intake.DecodeEvents(body)
			if err != nil {
				logger.Warnw("Failed to decode events", "error", err)
				http.Error(w, "Invalid request body", http.StatusBadRequest)
				return
			}
			if err := intake.Validate(events); err != nil {
				logger.Warnw("Rejected events", "error", err)
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			queued := 0
			for _, ev := range events {
				tasks, err := router.Route(r.Context(), ev)
				if err != nil {
					logger.Warnw("Rejected event", "error", err)
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				queued += len(tasks)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			if err := json.NewEncoder(w).Encode(map[string]int{"events": len(events), "tasks": queued}); err != nil {
				logger.Errorw("Failed to encode response", "error", err)
			}
		})

		r.Get("/queue", func(w http.ResponseWriter, r *http.Request) {
			n, err := depth(r.Context())
			if err != nil {
				logger.Errorw("Failed to read queue depth", "error", err)
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(map[string]int64{"depth": n}); err != nil {
				logger.Errorw("Failed to encode response", "error", err)
			}
		})
	})
}

func authMiddleware(jwtSecret string, logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := r.Header.Get("Authorization")
			if tokenStr == "" {
				logger.Warn("Missing authorization token")
				http.Error(w, "Missing token", http.StatusUnauthorized)
				return
			}
			tokenStr = strings.TrimPrefix(tokenStr, "Bearer ")
			token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				logger.Warnw("Invalid JWT token", "error", err)
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), claimsKey{}, token.Claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
