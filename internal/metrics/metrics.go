package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 基站业务指标
type AppMetrics struct {
	RxFrames       *prometheus.CounterVec // labels: family=multi_sensor|legacy|ack|command|mesh
	ParseErrors    *prometheus.CounterVec // labels: reason=short|crc|sync|values|unknown
	TelemetryTotal prometheus.Counter
	PiggybackAcks  prometheus.Counter
	CommandsSent   prometheus.Counter
	CommandResults *prometheus.CounterVec // labels: result=acked|nacked|timeout|canceled
	AnnounceTotal  prometheus.Counter
	TimeSyncTotal  prometheus.Counter
	OnlineNodes    prometheus.Gauge
	AlertsFired    *prometheus.CounterVec // labels: kind
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg *prometheus.Registry) *AppMetrics {
	m := &AppMetrics{
		RxFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lss_rx_frames_total",
			Help: "Received frames by family.",
		}, []string{"family"}),
		ParseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lss_parse_errors_total",
			Help: "Frame parse failures by reason.",
		}, []string{"reason"}),
		TelemetryTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lss_telemetry_total",
			Help: "Telemetry packets ingested.",
		}),
		PiggybackAcks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lss_piggyback_acks_total",
			Help: "Command acks carried in telemetry headers.",
		}),
		CommandsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lss_commands_sent_total",
			Help: "Command transmit attempts.",
		}),
		CommandResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lss_command_results_total",
			Help: "Terminal command dispositions.",
		}, []string{"result"}),
		AnnounceTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lss_announce_total",
			Help: "Sensor announce packets received.",
		}),
		TimeSyncTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lss_time_sync_total",
			Help: "Time sync commands queued.",
		}),
		OnlineNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lss_online_nodes",
			Help: "Nodes currently considered online.",
		}),
		AlertsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lss_alerts_fired_total",
			Help: "Threshold alerts dispatched.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.RxFrames, m.ParseErrors, m.TelemetryTotal, m.PiggybackAcks,
		m.CommandsSent, m.CommandResults, m.AnnounceTotal, m.TimeSyncTotal,
		m.OnlineNodes, m.AlertsFired)
	return m
}
