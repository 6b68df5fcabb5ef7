package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lss-net/lss/internal/outbound"
	"github.com/lss-net/lss/internal/protocol/lss"
	"github.com/lss-net/lss/internal/radio"
	"github.com/lss-net/lss/internal/registry"
)

type apiBench struct {
	engine *gin.Engine
	reg    *registry.Registry
	queue  *outbound.Queue
}

func newAPIBench(t *testing.T) *apiBench {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := registry.New(func() time.Time { return time.Unix(1754400000, 0) })
	queue := outbound.NewQueue(func() time.Time { return time.Unix(1754400000, 0) })
	h := NewHandler(reg, queue, nil, radio.DefaultParams, zap.NewNop())

	engine := gin.New()
	RegisterRoutes(engine, h, zap.NewNop())
	return &apiBench{engine: engine, reg: reg, queue: queue}
}

func (b *apiBench) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	b.engine.ServeHTTP(w, req)
	return w
}

func TestListAndGetNodes(t *testing.T) {
	b := newAPIBench(t)
	b.reg.IngestTelemetry(&lss.MultiSensorPacket{
		SensorID: 5, Location: "Shed", BatteryPercent: 85,
		Values: []lss.SensorValue{{Type: lss.ValueTemperature, Value: 20.0}},
	})

	w := b.do(t, http.MethodGet, "/api/nodes", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"node_id":5`)

	w = b.do(t, http.MethodGet, "/api/nodes/5", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"location":"Shed"`)

	w = b.do(t, http.MethodGet, "/api/nodes/9", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = b.do(t, http.MethodGet, "/api/nodes/0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "coordinator id rejected")

	w = b.do(t, http.MethodGet, "/api/nodes/banana", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitCommandLifecycle(t *testing.T) {
	b := newAPIBench(t)

	w := b.do(t, http.MethodPost, "/api/nodes/3/commands",
		gin.H{"command": "CMD_SET_INTERVAL", "interval_ms": 15000})
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp struct {
		Handle         string `json:"handle"`
		SequenceNumber uint8  `json:"sequence_number"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, uint8(1), resp.SequenceNumber)

	// pending 状态
	w = b.do(t, http.MethodGet, "/api/commands/"+resp.Handle, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"pending"`)

	// 回执到达后变 acked
	b.queue.MarkSent(mustHandle(t, resp.Handle))
	require.True(t, b.queue.ProcessAck(3, resp.SequenceNumber, true, 0))
	w = b.do(t, http.MethodGet, "/api/commands/"+resp.Handle, nil)
	assert.Contains(t, w.Body.String(), `"state":"acked"`)
}

func TestSubmitCommandValidation(t *testing.T) {
	b := newAPIBench(t)

	w := b.do(t, http.MethodPost, "/api/nodes/3/commands", gin.H{"command": "CMD_SET_INTERVAL", "interval_ms": 10})
	assert.Equal(t, http.StatusBadRequest, w.Code, "interval below protocol floor")

	w = b.do(t, http.MethodPost, "/api/nodes/3/commands", gin.H{"command": "CMD_WARP_DRIVE"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = b.do(t, http.MethodPost, "/api/nodes/3/commands", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = b.do(t, http.MethodPost, "/api/nodes/3/commands", gin.H{"command": "CMD_SET_MESH_CONFIG"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "enabled flag required")

	w = b.do(t, http.MethodPost, "/api/nodes/3/commands", gin.H{"command": "CMD_SET_MESH_CONFIG", "enabled": false})
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestCancelCommand(t *testing.T) {
	b := newAPIBench(t)
	w := b.do(t, http.MethodPost, "/api/nodes/3/commands", gin.H{"command": "CMD_PING"})
	require.Equal(t, http.StatusAccepted, w.Code)
	var resp struct {
		Handle string `json:"handle"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	w = b.do(t, http.MethodDelete, "/api/commands/"+resp.Handle, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = b.do(t, http.MethodDelete, "/api/commands/"+resp.Handle, nil)
	assert.Equal(t, http.StatusConflict, w.Code, "terminal command cannot be canceled twice")

	w = b.do(t, http.MethodDelete, "/api/commands/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRadioEndpoint(t *testing.T) {
	b := newAPIBench(t)
	w := b.do(t, http.MethodGet, "/api/radio", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"frequency_mhz":915`)
	assert.Contains(t, w.Body.String(), `"spreading_factor":10`)
	assert.Contains(t, w.Body.String(), `"sync_word":19`)
}

func TestHistoryDisabled(t *testing.T) {
	b := newAPIBench(t)
	w := b.do(t, http.MethodGet, "/api/nodes/3/history", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func mustHandle(t *testing.T, s string) uuid.UUID {
	t.Helper()
	h, err := uuid.Parse(s)
	require.NoError(t, err)
	return h
}
