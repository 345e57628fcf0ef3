package response

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOKAndError(t *testing.T) {
	ok := OK()
	assert.True(t, ok.Success)
	assert.Equal(t, StatusOK, ok.Status)
	assert.Empty(t, ok.Errors)

	msg := OKMessage("already logged out")
	assert.True(t, msg.Success)
	assert.Equal(t, "already logged out", msg.Message)

	e := Error("Invalid credentials")
	assert.False(t, e.Success)
	assert.Equal(t, StatusError, e.Status)
	assert.Equal(t, "Invalid credentials", e.Error)
	assert.Equal(t, []string{"Invalid credentials"}, e.Errors)
}

func TestValidationError(t *testing.T) {
	type req struct {
		Email    string `validate:"required,email"`
		Password string `validate:"required,min=8"`
		Confirm  string `validate:"eqfield=Password"`
	}

	err := validator.New().Struct(req{Email: "nope", Password: "short", Confirm: "other"})
	require.Error(t, err)

	resp := ValidationError(err.(validator.ValidationErrors))
	assert.False(t, resp.Success)
	assert.Equal(t, []string{
		"field Email must be a valid email address",
		"field Password must be at least 8 characters long",
		"field Confirm must match Password",
	}, resp.Errors)
	assert.Contains(t, resp.Error, "field Email")
}
