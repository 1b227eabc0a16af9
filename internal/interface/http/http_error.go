package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/finedust/internal/domain/intake"
	apperrors "github.com/yanqian/finedust/pkg/errors"
)

// HTTPError captures the metadata required to serialize an error response consistently.
type HTTPError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// NewHTTPError is a helper to build an HTTPError instance.
func NewHTTPError(status int, code, message string, err error) *HTTPError {
	return &HTTPError{Status: status, Code: code, Message: message, Err: err}
}

func asHTTPError(err error) *HTTPError {
	if err == nil {
		return nil
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	return &HTTPError{
		Status:  http.StatusInternalServerError,
		Code:    "internal_error",
		Message: "something went wrong",
		Err:     err,
	}
}

// fromDomainError maps an AppError code onto a response status. The code is
// passed through so clients can tell failures apart.
func fromDomainError(err error) *HTTPError {
	code := apperrors.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case intake.CodeInvalidInput:
		status = http.StatusBadRequest
	case intake.CodeAuthorization:
		status = http.StatusForbidden
	case intake.CodeNetwork, intake.CodeDataFormat:
		status = http.StatusBadGateway
	case intake.CodeSourceUnavailable:
		status = http.StatusServiceUnavailable
	case intake.CodePersistence:
		status = http.StatusInternalServerError
	case "":
		code = "internal_error"
	}
	return NewHTTPError(status, code, errMessage(err), err)
}

func abortWithError(c *gin.Context, err *HTTPError) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
