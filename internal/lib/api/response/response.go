package response

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Response struct {
	Success bool     `json:"success"`
	Status  string   `json:"status"`
	Message string   `json:"message,omitempty"`
	Error   string   `json:"error,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

const (
	StatusOK    = "OK"
	StatusError = "Error"
)

func OK() Response {
	return Response{
		Success: true,
		Status:  StatusOK,
	}
}

func OKMessage(msg string) Response {
	return Response{
		Success: true,
		Status:  StatusOK,
		Message: msg,
	}
}

func Error(msg string) Response {
	return Response{
		Success: false,
		Status:  StatusError,
		Error:   msg,
		Errors:  []string{msg},
	}
}

// * ValidationError собирает человекочитаемые ошибки валидации
func ValidationError(errs validator.ValidationErrors) Response {
	var errMsgs []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s is a required field", err.Field()))
		case "email":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s must be a valid email address", err.Field()))
		case "min":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s must be at least %s characters long", err.Field(), err.Param()))
		case "max":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s must be at most %s characters long", err.Field(), err.Param()))
		case "eqfield":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s must match %s", err.Field(), err.Param()))
		case "nefield":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s must differ from %s", err.Field(), err.Param()))
		default:
			errMsgs = append(errMsgs, fmt.Sprintf("field %s is not valid", err.Field()))
		}
	}

	return Response{
		Success: false,
		Status:  StatusError,
		Error:   strings.Join(errMsgs, ", "),
		Errors:  errMsgs,
	}
}
