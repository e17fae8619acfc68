package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"
)

// Logger 用 glog 记录每个请求
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path += "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		elapsed := time.Since(start)
		switch {
		case status >= http.StatusInternalServerError:
			glog.Errorf("[http] %s %s %d %s", c.Request.Method, path, status, elapsed)
		case status >= http.StatusBadRequest:
			glog.Warningf("[http] %s %s %d %s", c.Request.Method, path, status, elapsed)
		default:
			glog.V(1).Infof("[http] %s %s %d %s", c.Request.Method, path, status, elapsed)
		}
	}
}

// Recovery turns a panic into the generic JSON 500.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, err any) {
		glog.Errorf("[http] panic on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Server Error",
		})
	})
}
