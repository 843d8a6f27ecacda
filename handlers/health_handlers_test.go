package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name   string
		db     Pinger
		status int
	}{
		{"no database", nil, http.StatusOK},
		{"database up", pingFunc(func(context.Context) error { return nil }), http.StatusOK},
		{"database down", pingFunc(func(context.Context) error { return errors.New("refused") }), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/health", HealthCheck(tt.db))

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.status, w.Code)
		})
	}
}
