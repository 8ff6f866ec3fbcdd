// Package api 仪表的 HTTP 查询与命令接口
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/gas-sensor/internal/poller"
	"github.com/taoyao-code/gas-sensor/internal/protocol/mps"
	"github.com/taoyao-code/gas-sensor/internal/session"
	"github.com/taoyao-code/gas-sensor/internal/storage/models"
)

// Commander 会话能力：提交命令与读取缓存状态
type Commander interface {
	Submit(ctx context.Context, cmd mps.Command, opts ...session.SubmitOption) (*mps.Response, error)
	LastAnswer() (*mps.Response, time.Time)
	Version() mps.VersionInfo
	RefreshVersion(ctx context.Context, opts ...session.SubmitOption) (mps.VersionInfo, error)
	State() session.State
	QueueLen() int
	Throttle() *session.Throttle
}

// ReadingSource 周期采集器的只读视图
type ReadingSource interface {
	Latest() (models.Reading, bool)
	Identity() poller.Identity
	Breaker() *poller.Breaker
}

// HistoryStore 读数历史（PostgreSQL）
type HistoryStore interface {
	Recent(ctx context.Context, sensor string, limit int) ([]models.Reading, error)
}

// SensorStore 传感器登记（gorm）
type SensorStore interface {
	List(ctx context.Context) ([]models.Sensor, error)
	GetBySerial(ctx context.Context, serial string) (*models.Sensor, error)
}

// Handler 仪表 API 处理器；Poller、History、Sensors 可为 nil
type Handler struct {
	sess    Commander
	poller  ReadingSource
	history HistoryStore
	sensors SensorStore
	timeout time.Duration
	logger  *zap.Logger
}

// NewHandler 创建处理器
func NewHandler(sess Commander, src ReadingSource, history HistoryStore, sensors SensorStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		sess:    sess,
		poller:  src,
		history: history,
		sensors: sensors,
		timeout: 5 * time.Second,
		logger:  logger,
	}
}

// Status 会话与采集状态
func (h *Handler) Status(c *gin.Context) {
	out := gin.H{
		"session":  h.sess.State().String(),
		"queue":    h.sess.QueueLen(),
		"throttle": h.sess.Throttle().Stats(),
	}
	if h.poller != nil {
		br := h.poller.Breaker()
		out["breaker"] = gin.H{"state": br.State().String(), "trips": br.Trips()}
	}
	c.JSON(http.StatusOK, out)
}

// Latest 最近一次有效读数：优先取采集器结果，其次取会话缓存的 ANSWER
func (h *Handler) Latest(c *gin.Context) {
	if h.poller != nil {
		if r, ok := h.poller.Latest(); ok {
			c.JSON(http.StatusOK, gin.H{"reading": r})
			return
		}
	}
	resp, at := h.sess.LastAnswer()
	if resp == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no reading yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": resp.Map(), "updated_at": at})
}

// Version 版本信息；refresh=true 时向仪表重新查询
func (h *Handler) Version(c *gin.Context) {
	if c.Query("refresh") != "true" {
		c.JSON(http.StatusOK, gin.H{"version": h.sess.Version()})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()
	v, err := h.sess.RefreshVersion(ctx)
	if err != nil {
		h.writeError(c, "refresh version", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"version": v})
}

// Identity 启动时读取的仪表身份
func (h *Handler) Identity(c *gin.Context) {
	if h.poller == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "poller not running"})
		return
	}
	c.JSON(http.StatusOK, h.poller.Identity())
}

// ListCommands 支持的命令
func (h *Handler) ListCommands(c *gin.Context) {
	list := make([]gin.H, 0, len(mps.Commands()))
	for _, id := range mps.Commands() {
		d := mps.Lookup(id)
		list = append(list, gin.H{
			"id":           uint16(id),
			"name":         d.Name,
			"request_len":  d.RequestLen,
			"response_len": d.ResponseLen,
		})
	}
	c.JSON(http.StatusOK, gin.H{"commands": list})
}

// Execute 按名称下发无负载命令并返回解码结果
func (h *Handler) Execute(c *gin.Context) {
	cmd, err := mps.ParseCommand(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.submit(c, cmd)
}

// MeasurementRequest 启停测量请求体
type MeasurementRequest struct {
	Unit string `json:"unit"`
	Mode string `json:"mode" binding:"required"`
}

// Measurement 启停测量
func (h *Handler) Measurement(c *gin.Context) {
	var req MeasurementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	unit, err := mps.ParseUnit(req.Unit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mode, err := mps.ParseMode(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.submit(c, mps.Measurement(unit, mode))
}

func (h *Handler) submit(c *gin.Context, cmd mps.Command) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	resp, err := h.sess.Submit(ctx, cmd)
	if err != nil {
		h.writeError(c, cmd.String(), err)
		return
	}
	h.logger.Info("command executed via api", zap.String("cmd", cmd.String()), zap.Stringer("resp", resp))
	switch {
	case !cmd.ExpectsResponse():
		c.JSON(http.StatusAccepted, gin.H{"command": cmd.String(), "sent": true})
	case resp == nil:
		c.JSON(http.StatusBadGateway, gin.H{"command": cmd.String(), "error": "invalid response frame discarded"})
	default:
		c.JSON(http.StatusOK, gin.H{"command": cmd.String(), "ok": resp.OK(), "response": resp.Map()})
	}
}

// ListSensors 已登记的传感器
func (h *Handler) ListSensors(c *gin.Context) {
	list, err := h.sensors.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sensors": list})
}

// GetSensor 按序列号查询
func (h *Handler) GetSensor(c *gin.Context) {
	s, err := h.sensors.GetBySerial(c.Request.Context(), c.Param("serial"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s)
}

// History 最近读数，?sensor=&limit=
func (h *Handler) History(c *gin.Context) {
	var q struct {
		Sensor string `form:"sensor"`
		Limit  int    `form:"limit,default=100" binding:"min=1,max=1000"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	list, err := h.history.Recent(c.Request.Context(), q.Sensor, q.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"readings": list})
}

func (h *Handler) writeError(c *gin.Context, op string, err error) {
	h.logger.Warn("api command failed", zap.String("op", op), zap.Error(err))
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrClosed):
		code = http.StatusServiceUnavailable
	case errors.Is(err, session.ErrSubmitTimeout):
		code = http.StatusGatewayTimeout
	case errors.Is(err, session.ErrTransport):
		code = http.StatusBadGateway
	}
	c.JSON(code, gin.H{"error": err.Error()})
}
