package export

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_export_tasks_total",
		Help: "Export tasks finished, by resource type and final status.",
	}, []string{"type", "status"})

	rowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_export_rows_total",
		Help: "Spreadsheet rows written by export workers.",
	}, []string{"type"})

	activeTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crm_export_active_tasks",
		Help: "Export workers currently running.",
	})

	taskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crm_export_duration_seconds",
		Help:    "Wall time of export workers.",
		Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 300, 900},
	}, []string{"type", "status"})

	rejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_export_rejected_total",
		Help: "Export requests rejected before a task was created.",
	}, []string{"reason"})
)
