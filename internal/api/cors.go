package api

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/cors"
)

// corsFromEnvironment builds a go-chi/cors middleware from
// CORS_ALLOWED_ORIGINS / CORS_ALLOWED_METHODS / CORS_ALLOWED_HEADERS /
// CORS_ALLOW_CREDENTIALS / CORS_MAX_AGE / CORS_EXPOSED_HEADERS, the same
// env-var surface the teacher's CORS package reads, rebuilt here on top of
// the real go-chi/cors library rather than a hand-rolled header writer.
func corsFromEnvironment() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedOrigins:   splitEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		AllowedMethods:   splitEnvList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PATCH", "OPTIONS"}),
		AllowedHeaders:   splitEnvList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		ExposedHeaders:   splitEnvList("CORS_EXPOSED_HEADERS", nil),
		AllowCredentials: envBool("CORS_ALLOW_CREDENTIALS", false),
		MaxAge:           envInt("CORS_MAX_AGE", 300),
	}
	return cors.Handler(opts)
}

func splitEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
