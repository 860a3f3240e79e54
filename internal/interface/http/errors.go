package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/swordot/portal/pkg/helpers"
	"github.com/swordot/portal/pkg/response"
)

const (
	msgAccountConflict   = "Account Name or Email already in use."
	msgInvalidCredential = "Your password must be at least 5 characters long"
	msgInvalidPayload    = "invalid payload"
	msgInternal          = "internal error"
)

// MethodNotAllowed answers requests whose path exists under another method. It is installed
// as the engine's NoMethod handler.
func MethodNotAllowed(c *gin.Context) {
	response.Error(c, http.StatusMethodNotAllowed, fmt.Sprintf("You can't %s this route.", c.Request.Method), nil)
}

func internalError(c *gin.Context, logger *logrus.Logger, msg string, err error) {
	helpers.LogError(logger, msg, err, logrus.Fields{"request_id": c.GetString("request_id")})
	response.Error(c, http.StatusInternalServerError, msgInternal, nil)
}
