package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"mediasniff/pkg/model"
)

var (
	ObservedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediasniff_observed_urls_total",
		Help: "Media records inserted into the catalog, by stream kind",
	}, []string{"kind"})

	HeaderUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediasniff_header_updates_total",
		Help: "Header observations, merged into a record or cached until the URL shows up",
	}, []string{"path"})

	CatalogSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediasniff_catalog_records",
		Help: "Current number of records in the catalog",
	})

	EvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediasniff_evictions_total",
		Help: "Records removed by the retention sweep",
	})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediasniff_notifications_total",
		Help: "Observer notifications by outcome (direct, fallback, dropped)",
	}, []string{"outcome"})

	DeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediasniff_deliveries_total",
		Help: "Delivery attempts by action and outcome",
	}, []string{"action", "outcome"})
)

// RecordObserved 记录一次新入库
func RecordObserved(kind model.StreamKind) {
	if kind == "" {
		kind = model.StreamUnknown
	}
	ObservedTotal.WithLabelValues(string(kind)).Inc()
}

// RecordHeaders 记录一次请求头观测
func RecordHeaders(merged bool) {
	path := "cached"
	if merged {
		path = "merged"
	}
	HeaderUpdatesTotal.WithLabelValues(path).Inc()
}

// RecordEvictions 记录清理数量
func RecordEvictions(n int) {
	if n <= 0 {
		return
	}
	EvictionsTotal.Add(float64(n))
}

// SetCatalogSize 更新目录大小
func SetCatalogSize(n int) { CatalogSize.Set(float64(n)) }

// RecordNotification 记录通知结果
func RecordNotification(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	NotificationsTotal.WithLabelValues(outcome).Inc()
}

// RecordDelivery 记录投递结果
func RecordDelivery(action string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	DeliveriesTotal.WithLabelValues(action, outcome).Inc()
}
