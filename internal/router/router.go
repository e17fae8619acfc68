package router

import (
	"net/http"
	"time"

	"forumsync/internal/handlers"
	"forumsync/internal/middleware"
	"forumsync/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

type Options struct {
	AllowOrigins []string
	Forum        *services.ForumService
	Events       http.Handler // websocket endpoint
}

// New builds the engine with the middleware chain and all routes.
func New(opts Options) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	corsConfig := cors.Config{
		AllowOrigins:     opts.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(opts.AllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	}
	r.Use(cors.New(corsConfig))
	// websocket 升级不能被 gzip 包装
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/ws"})))

	RegisterRoutes(r, opts)
	return r
}

func RegisterRoutes(r *gin.Engine, opts Options) {
	postHandler := handlers.NewPostHandler(opts.Forum)

	r.GET("/health", handlers.Health) // 存活检查
	if opts.Events != nil {
		r.GET("/ws", gin.WrapH(opts.Events)) // 实时事件
	}

	api := r.Group("/api")
	{
		api.GET("/posts", postHandler.List)                   // 列表 / 搜索 / 排序 / 分页
		api.POST("/posts", postHandler.Create)                // 发帖
		api.GET("/posts/:id", postHandler.Detail)             // 帖子详情 + 回复
		api.DELETE("/posts/:id", postHandler.Delete)          // 删除帖子及回复
		api.POST("/posts/:id/reply", postHandler.Reply)       // 回复
		api.POST("/posts/:id/upvote", postHandler.Upvote)     // 点赞
		api.POST("/posts/:id/answered", postHandler.Answered) // 标记已解决
	}

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, "Route not found")
	})
}
