package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ParableToVideo-server/apperr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondError writes err with the status its kind maps to.
func RespondError(c *gin.Context, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	code := string(apperr.KindOf(err))
	if code == "" {
		code = "internal"
	}
	c.JSON(apperr.HTTPStatus(err), ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondAccepted acknowledges work handed to the background.
func RespondAccepted(c *gin.Context, id, message string) {
	c.JSON(http.StatusAccepted, gin.H{"id": id, "message": message})
}
