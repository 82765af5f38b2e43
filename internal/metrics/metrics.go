// Package metrics はレポート処理のPrometheusメトリクスを定義する
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// レポートの処理結果
const (
	ResultAccepted  = "accepted"
	ResultDebounced = "debounced"
	ResultMalformed = "malformed"
)

// 保存先
const (
	StoreProfile     = "profile"
	StoreHardwareMap = "hardware_map"
)

// Metrics はpedaldのコレクタ一式
type Metrics struct {
	Reports           *prometheus.CounterVec
	Injections        *prometheus.CounterVec
	InjectionErrors   prometheus.Counter
	Edges             *prometheus.CounterVec
	Devices           *prometheus.GaugeVec
	ReadErrors        prometheus.Counter
	PersistenceErrors *prometheus.CounterVec
	Captures          *prometheus.CounterVec
}

// New はregに登録したコレクタを作る。regがnilなら登録しない
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Reports: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pedald_reports_total",
			Help: "Pedal reports received, by debounce result.",
		}, []string{"result"}),
		Injections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pedald_injections_total",
			Help: "Synthetic key and button strokes sent to the injector.",
		}, []string{"direction"}),
		InjectionErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "pedald_injection_errors_total",
			Help: "Injector calls that returned an error.",
		}),
		Edges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pedald_edges_total",
			Help: "Rising edges observed per switch.",
		}, []string{"switch"}),
		Devices: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pedald_devices",
			Help: "Connected pedals, split by whether they have a stored position.",
		}, []string{"mapped"}),
		ReadErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "pedald_read_errors_total",
			Help: "Transient hidraw read errors.",
		}),
		PersistenceErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pedald_persistence_errors_total",
			Help: "Failed writes of profiles and the hardware map.",
		}, []string{"store"}),
		Captures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pedald_captures_total",
			Help: "Finished binding captures, by outcome.",
		}, []string{"outcome"}),
	}
}

// SetDevices は接続中のデバイス数を更新する
func (m *Metrics) SetDevices(mapped, unmapped int) {
	m.Devices.WithLabelValues("true").Set(float64(mapped))
	m.Devices.WithLabelValues("false").Set(float64(unmapped))
}
