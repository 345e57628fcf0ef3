package register

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

type stubRegistrar struct {
	id  int64
	err error
	got auth.RegisterRequest
}

func (s *stubRegistrar) RegisterNewUser(_ context.Context, req auth.RegisterRequest) (int64, error) {
	s.got = req
	return s.id, s.err
}

func TestRegisterHandler(t *testing.T) {
	const valid = `{"email":"alice@example.com","username":"alice","password":"Secret12!","first_name":"Alice"}`

	tests := []struct {
		name       string
		body       string
		svcErr     error
		wantStatus int
		wantError  string
		wantID     int64
	}{
		{name: "created", body: valid, wantStatus: http.StatusCreated, wantID: 42},
		{name: "duplicate", body: valid, svcErr: auth.ErrUserExists, wantStatus: http.StatusConflict, wantError: "User already exists"},
		{name: "internal", body: valid, svcErr: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantError: "Internal error"},
		{name: "bad json", body: `{"email":`, wantStatus: http.StatusBadRequest, wantError: "Failed to decode request"},
		{
			name:       "invalid email",
			body:       `{"email":"nope","username":"alice","password":"Secret12!"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "field Email must be a valid email address",
		},
		{
			name:       "short password",
			body:       `{"email":"alice@example.com","username":"alice","password":"short"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "field Pass must be at least 8 characters long",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubRegistrar{id: 42, err: tt.svcErr}
			h := New(logger.Discard(), validator.New(), svc)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(tt.body)))

			assert.Equal(t, tt.wantStatus, rec.Code)

			var got Response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.wantError, got.Error)

			if tt.wantStatus == http.StatusCreated {
				assert.Equal(t, tt.wantID, got.UserID)
				assert.Equal(t, "alice", svc.got.Username)
				assert.Equal(t, "Secret12!", svc.got.Password)
				assert.Equal(t, "Alice", svc.got.FirstName)
			}
		})
	}
}
