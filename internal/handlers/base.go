package handlers

import (
	"errors"
	"net/http"

	"forumsync/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/golang/glog"
)

const serverErrorMessage = "Server Error"

func init() {
	// 未知字段直接 400
	binding.EnableDecoderDisallowUnknownFields = true
}

// OK writes a success envelope. extra is merged next to data.
func OK(c *gin.Context, code int, data any, extra gin.H) {
	body := gin.H{"success": true}
	if data != nil {
		body["data"] = data
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(code, body)
}

// Fail writes a failure envelope with a client-facing message.
func Fail(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, gin.H{"success": false, "error": message})
}

// RenderError maps a service error onto its status code. Anything outside
// the service taxonomy is logged and reported as a generic 500.
func RenderError(c *gin.Context, err error) {
	var ve *services.ValidationError
	var nf *services.NotFoundError
	switch {
	case errors.As(err, &ve):
		Fail(c, http.StatusBadRequest, ve.Error())
	case errors.As(err, &nf):
		Fail(c, http.StatusNotFound, nf.Error())
	default:
		glog.Errorf("[api] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		Fail(c, http.StatusInternalServerError, serverErrorMessage)
	}
}

// bindFailed reports a body that could not be decoded into the command type.
func bindFailed(c *gin.Context, err error) {
	glog.V(1).Infof("[api] bad body on %s: %v", c.Request.URL.Path, err)
	Fail(c, http.StatusBadRequest, "Invalid request body")
}
