package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RegisterRoutes 注册全部REST路由
func RegisterRoutes(r *gin.Engine, h *Handler, logger *zap.Logger) {
	if r == nil || h == nil {
		return
	}

	api := r.Group("/api")

	// 节点查询
	api.GET("/nodes", h.ListNodes)
	api.GET("/nodes/:id", h.GetNode)
	api.GET("/nodes/:id/history", h.GetNodeHistory)

	// 命令提交与跟踪
	api.POST("/nodes/:id/commands", h.SubmitCommand)
	api.GET("/commands", h.ListPendingCommands)
	api.GET("/commands/:handle", h.GetCommand)
	api.DELETE("/commands/:handle", h.CancelCommand)

	// 射频状态
	api.GET("/radio", h.GetRadio)

	logger.Info("api routes registered", zap.Int("endpoints", 8))
}
