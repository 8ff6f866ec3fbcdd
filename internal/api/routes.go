package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/gas-sensor/internal/api/middleware"
	cfgpkg "github.com/taoyao-code/gas-sensor/internal/config"
)

// RegisterRoutes 注册 /api/v1 路由。查询接口无需认证，下发命令的接口按 authCfg 认证。
func RegisterRoutes(r *gin.Engine, h *Handler, authCfg cfgpkg.HTTPAuthConfig, logger *zap.Logger) {
	if r == nil || h == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	v1 := r.Group("/api/v1")
	v1.GET("/status", h.Status)
	v1.GET("/latest", h.Latest)
	v1.GET("/version", h.Version)
	v1.GET("/identity", h.Identity)
	v1.GET("/commands", h.ListCommands)
	endpoints := 5

	if h.sensors != nil {
		v1.GET("/sensors", h.ListSensors)
		v1.GET("/sensors/:serial", h.GetSensor)
		endpoints += 2
	}
	if h.history != nil {
		v1.GET("/readings", h.History)
		endpoints++
	}

	ctl := v1.Group("")
	if authCfg.Enabled {
		ctl.Use(middleware.APIKeyAuth(authCfg, logger))
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(authCfg.APIKeys)))
	} else {
		logger.Warn("api authentication disabled - only for development!")
	}
	ctl.POST("/commands/:name", h.Execute)
	ctl.POST("/measurement", h.Measurement)
	endpoints += 2

	logger.Info("api routes registered", zap.Int("endpoints", endpoints))
}
