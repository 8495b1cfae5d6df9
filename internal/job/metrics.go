package job

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	tilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvas_job_tiles_total",
			Help: "Tiles finished by batch jobs, by result and failure reason",
		},
		[]string{"result", "reason"},
	)

	tileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "canvas_job_tile_duration_seconds",
			Help:    "Render, encode and upload time of one tile",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	jobsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "canvas_jobs_running",
			Help: "Batch jobs currently running",
		},
	)
)

func init() {
	prometheus.MustRegister(tilesTotal)
	prometheus.MustRegister(tileDuration)
	prometheus.MustRegister(jobsRunning)
}
