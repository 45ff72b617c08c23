package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phrazzld/aves-annotator/internal/api/shared"
	"github.com/phrazzld/aves-annotator/internal/auth"
	"github.com/phrazzld/aves-annotator/internal/platform/logger"
	"github.com/stretchr/testify/assert"
)

type fakeTokens struct {
	reviewer string
	err      error
}

func (f fakeTokens) GenerateToken(context.Context, string) (string, error) {
	return "token", nil
}

func (f fakeTokens) ValidateToken(_ context.Context, token string) (*auth.Claims, error) {
	if f.err != nil {
		return nil, f.err
	}
	if token != "good" {
		return nil, auth.ErrInvalidToken
	}
	return &auth.Claims{ReviewerID: f.reviewer}, nil
}

func reviewerEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := shared.GetReviewerID(r.Context())
		_, _ = w.Write([]byte(id))
	})
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		header     string
		tokens     fakeTokens
		wantStatus int
		wantBody   string
	}{
		{"valid token", "Bearer good", fakeTokens{reviewer: "ana"}, http.StatusOK, "ana"},
		{"lowercase scheme", "bearer good", fakeTokens{reviewer: "ana"}, http.StatusOK, "ana"},
		{"missing header", "", fakeTokens{}, http.StatusUnauthorized, "Authorization header required"},
		{"wrong scheme", "Basic abc", fakeTokens{}, http.StatusUnauthorized, "Invalid authorization format"},
		{"empty token", "Bearer ", fakeTokens{}, http.StatusUnauthorized, "Invalid authorization format"},
		{"bad token", "Bearer bad", fakeTokens{}, http.StatusUnauthorized, "Invalid token"},
		{"expired", "Bearer good", fakeTokens{err: auth.ErrExpiredToken}, http.StatusUnauthorized, "Token expired"},
		{"unexpected failure", "Bearer good", fakeTokens{err: errors.New("boom")}, http.StatusInternalServerError, "Authentication error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := NewAuthMiddleware(tc.tokens).Authenticate(reviewerEcho())
			req := httptest.NewRequest(http.MethodPost, "/api/feedback", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tc.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tc.wantBody)
		})
	}
}

func TestTraceMiddleware(t *testing.T) {
	t.Parallel()

	buf, log := logger.NewTestLogger(t)
	var seen string
	h := NewTraceMiddleware(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.GetTraceID(r.Context())
		logger.FromContext(r.Context()).Info("handled")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Len(t, seen, 32)
	assert.Equal(t, seen, w.Header().Get(TraceIDHeader))
	logger.AssertLogContains(t, buf, `"trace_id":"`+seen+`"`)
	logger.AssertLogContains(t, buf, `"msg":"handled"`)
}
