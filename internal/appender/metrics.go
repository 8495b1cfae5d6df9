package appender

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	appendTilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvas_append_tiles_total",
			Help: "Tiles touched by point appends, by path (patched, rendered, failed)",
		},
		[]string{"path"},
	)

	regenerateTilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvas_regenerate_tiles_total",
			Help: "Tiles re-rendered for a single point, by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(appendTilesTotal)
	prometheus.MustRegister(regenerateTilesTotal)
}
