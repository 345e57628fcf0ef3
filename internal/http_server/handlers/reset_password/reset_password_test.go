package resetPassword

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"marketplace_auth/internal/auth"
	"marketplace_auth/internal/lib/logger"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResetter struct {
	err   error
	calls int
}

func (s *stubResetter) ResetPassword(context.Context, string, string, string) error {
	s.calls++
	return s.err
}

func TestResetPasswordHandler(t *testing.T) {
	const valid = `{"token":"t","new_password":"NewPass2!","confirm_password":"NewPass2!"}`

	tests := []struct {
		name       string
		body       string
		svcErr     error
		wantStatus int
		wantError  string
		wantCalls  int
	}{
		{name: "ok", body: valid, wantStatus: http.StatusOK, wantCalls: 1},
		{name: "invalid token", body: valid, svcErr: auth.ErrInvalidToken, wantStatus: http.StatusBadRequest, wantError: "Invalid or expired token", wantCalls: 1},
		{name: "same password", body: valid, svcErr: auth.ErrSamePassword, wantStatus: http.StatusBadRequest, wantError: "New password must differ from the current one", wantCalls: 1},
		{name: "inactive", body: valid, svcErr: auth.ErrUserInactive, wantStatus: http.StatusForbidden, wantError: "User is inactive", wantCalls: 1},
		{name: "internal", body: valid, svcErr: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantError: "Internal error", wantCalls: 1},
		{
			name:       "confirmation mismatch",
			body:       `{"token":"t","new_password":"NewPass2!","confirm_password":"Other3!!"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "field ConfirmPassword must match NewPassword",
		},
		{
			name:       "short password",
			body:       `{"token":"t","new_password":"short","confirm_password":"short"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "field NewPassword must be at least 8 characters long",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubResetter{err: tt.svcErr}
			h := New(logger.Discard(), validator.New(), svc)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/reset-password", strings.NewReader(tt.body)))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCalls, svc.calls)

			var got Response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.wantError, got.Error)
		})
	}
}
