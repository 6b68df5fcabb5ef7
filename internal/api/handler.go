// Package api 暴露基站的REST查询与命令提交面。
// 命令提交返回uuid句柄，调用方轮询句柄获知
// {pending, in-flight, acked, nacked, timeout, canceled} 处置。
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lss-net/lss/internal/outbound"
	"github.com/lss-net/lss/internal/protocol/lss"
	"github.com/lss-net/lss/internal/radio"
	"github.com/lss-net/lss/internal/registry"
	"github.com/lss-net/lss/internal/store"
)

// Handler REST处理器
type Handler struct {
	reg    *registry.Registry
	queue  *outbound.Queue
	repo   *store.Repository // 可为nil
	params func() radio.Params
	logger *zap.Logger
}

// NewHandler 创建处理器
func NewHandler(
	reg *registry.Registry,
	queue *outbound.Queue,
	repo *store.Repository,
	params func() radio.Params,
	logger *zap.Logger,
) *Handler {
	return &Handler{reg: reg, queue: queue, repo: repo, params: params, logger: logger}
}

// ListNodes GET /api/nodes
func (h *Handler) ListNodes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"nodes": h.reg.All()})
}

// GetNode GET /api/nodes/:id
func (h *Handler) GetNode(c *gin.Context) {
	id, ok := parseNodeID(c)
	if !ok {
		return
	}
	node, found := h.reg.Get(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "node not known"})
		return
	}
	c.JSON(http.StatusOK, node)
}

// GetNodeHistory GET /api/nodes/:id/history?since=<unix>&limit=<n>
func (h *Handler) GetNodeHistory(c *gin.Context) {
	id, ok := parseNodeID(c)
	if !ok {
		return
	}
	if h.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history store disabled"})
		return
	}
	since := time.Time{}
	if s := c.Query("since"); s != "" {
		sec, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
			return
		}
		since = time.Unix(sec, 0)
	}
	limit := 100
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	rows, err := h.repo.History(id, since, limit)
	if err != nil {
		h.logger.Error("history query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history query failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, r := range rows {
		values, err := store.DecodeValues(r.ValuesJSON)
		if err != nil {
			continue
		}
		out = append(out, gin.H{
			"timestamp":       r.ReceivedAt.Unix(),
			"battery_percent": r.BatteryPercent,
			"rssi":            r.RSSI,
			"snr":             r.SNR,
			"values":          values,
		})
	}
	c.JSON(http.StatusOK, gin.H{"node_id": id, "history": out})
}

// commandRequest 命令提交请求体。command 取 CMD_* 名称。
type commandRequest struct {
	Command    string  `json:"command" binding:"required"`
	IntervalMs uint32  `json:"interval_ms"`
	Location   string  `json:"location"`
	Zone       string  `json:"zone"`
	Low        float32 `json:"low"`
	High       float32 `json:"high"`
	Critical   float32 `json:"critical"`
	Enabled    *bool   `json:"enabled"`
	Frequency  float32 `json:"frequency"`
	SF         uint8   `json:"spreading_factor"`
	TxPower    uint8   `json:"tx_power"`
	Epoch      uint32  `json:"epoch"`
	TzOffset   int16   `json:"tz_offset_min"`
}

// SubmitCommand POST /api/nodes/:id/commands
func (h *Handler) SubmitCommand(c *gin.Context) {
	id, ok := parseNodeID(c)
	if !ok {
		return
	}
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cmdType, data, reason := buildPayload(&req)
	if reason != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": reason})
		return
	}

	handle, seq := h.queue.Enqueue(id, cmdType, data)
	h.logger.Info("command submitted",
		zap.String("cmd", cmdType.Name()),
		zap.Uint8("node_id", id),
		zap.Uint8("seq", seq))
	c.JSON(http.StatusAccepted, gin.H{
		"handle":          handle.String(),
		"sequence_number": seq,
	})
}

// buildPayload 按命令名编出数据区
func buildPayload(req *commandRequest) (lss.CommandType, []byte, string) {
	switch req.Command {
	case "CMD_PING":
		return lss.CmdPing, nil, ""
	case "CMD_GET_CONFIG":
		return lss.CmdGetConfig, nil, ""
	case "CMD_SET_INTERVAL":
		if req.IntervalMs < lss.IntervalMinMs || req.IntervalMs > lss.IntervalMaxMs {
			return 0, nil, "interval_ms out of range"
		}
		return lss.CmdSetInterval, lss.EncodeInterval(req.IntervalMs), ""
	case "CMD_SET_LOCATION":
		if req.Location == "" {
			return 0, nil, "location required"
		}
		return lss.CmdSetLocation, lss.EncodeLocation(req.Location, req.Zone), ""
	case "CMD_SET_TEMP_THRESH":
		return lss.CmdSetTempThresh, lss.EncodeFloatPair(req.Low, req.High), ""
	case "CMD_SET_BATTERY_THRESH":
		return lss.CmdSetBatteryThresh, lss.EncodeFloatPair(req.Low, req.Critical), ""
	case "CMD_SET_MESH_CONFIG":
		if req.Enabled == nil {
			return 0, nil, "enabled required"
		}
		return lss.CmdSetMeshConfig, lss.EncodeMeshConfig(*req.Enabled), ""
	case "CMD_RESTART":
		return lss.CmdRestart, nil, ""
	case "CMD_FACTORY_RESET":
		return lss.CmdFactoryReset, nil, ""
	case "CMD_SET_LORA_PARAMS":
		if req.Frequency == 0 || req.SF == 0 {
			return 0, nil, "frequency and spreading_factor required"
		}
		return lss.CmdSetLoRaParams, lss.EncodeLoRaParams(req.Frequency, req.SF, req.TxPower), ""
	case "CMD_TIME_SYNC":
		epoch := req.Epoch
		if epoch == 0 {
			epoch = uint32(time.Now().UTC().Unix())
		}
		return lss.CmdTimeSync, lss.EncodeTimeSync(epoch, req.TzOffset), ""
	}
	return 0, nil, "unknown command"
}

// GetCommand GET /api/commands/:handle
func (h *Handler) GetCommand(c *gin.Context) {
	handle, err := uuid.Parse(c.Param("handle"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid handle"})
		return
	}
	st, ok := h.queue.Status(handle)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown handle"})
		return
	}
	c.JSON(http.StatusOK, st)
}

// CancelCommand DELETE /api/commands/:handle
func (h *Handler) CancelCommand(c *gin.Context) {
	handle, err := uuid.Parse(c.Param("handle"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid handle"})
		return
	}
	if !h.queue.Cancel(handle) {
		c.JSON(http.StatusConflict, gin.H{"error": "command already terminal or unknown"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"canceled": true})
}

// ListPendingCommands GET /api/commands
func (h *Handler) ListPendingCommands(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"commands": h.queue.Pending()})
}

// GetRadio GET /api/radio
func (h *Handler) GetRadio(c *gin.Context) {
	p := h.params()
	c.JSON(http.StatusOK, gin.H{
		"frequency_mhz":    p.FrequencyMHz,
		"spreading_factor": p.SpreadingFactor,
		"bandwidth_hz":     p.BandwidthHz,
		"coding_rate":      p.CodingRate,
		"tx_power_dbm":     p.TxPower,
		"preamble_length":  p.PreambleLength,
		"network_id":       p.NetworkID,
		"sync_word":        p.SyncWord(),
	})
}

func parseNodeID(c *gin.Context) (uint8, bool) {
	n, err := strconv.ParseUint(c.Param("id"), 10, 8)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid node id"})
		return 0, false
	}
	id := uint8(n)
	if id == lss.BaseStationID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "node 0 is the coordinator"})
		return 0, false
	}
	return id, true
}
