package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// recoveryOptions matches the recovery choices the flow engine attaches to
// its recoverable SSE errors, so clients handle both surfaces with one shape.
var recoveryOptions = []string{"retry", "restart"}

type APIError struct {
	Message  string   `json:"message"`
	Code     string   `json:"code,omitempty"`
	Recovery []string `json:"recovery,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondError writes the error envelope. Server-side failures carry
// recovery options; caller mistakes (4xx) do not, since retrying the same
// request cannot help.
func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	apiErr := APIError{
		Message: msg,
		Code:    code,
	}
	if status >= http.StatusInternalServerError {
		apiErr.Recovery = recoveryOptions
	}
	c.JSON(status, ErrorEnvelope{Error: apiErr})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
