package response

import (
	"errors"
	"net/http"
	"time"

	"license-authority/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     interface{} `json:"error,omitempty"`
	Timestamp string      `json:"timestamp"`
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// OK writes data with status.
func OK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Envelope{Success: true, Data: data, Timestamp: now()})
}

// Fail writes err. Errors that are not errutil.BaseError are reported as
// internal errors without their text.
func Fail(c *gin.Context, err error) {
	var be errutil.BaseError
	if !errors.As(err, &be) {
		be = errutil.BaseError{Code: errutil.StatusInternal, Message: http.StatusText(http.StatusInternalServerError)}
	}
	c.AbortWithStatusJSON(be.Code.HTTPStatus(), Envelope{Success: false, Error: be.JSON(), Timestamp: now()})
}
