package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every registry collector. A private registry keeps tests free of
// duplicate-registration panics from the global default.
var Registry = prometheus.NewRegistry()

var (
	PermissionDenied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "registry",
		Name:      "permission_denied_total",
		Help:      "Authorization checks that rejected the caller.",
	}, []string{"resource", "access"})

	PropagatedGrants = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "registry",
		Name:      "propagated_grants_total",
		Help:      "Entry-level grants written or removed by folder propagation.",
	}, []string{"outcome"})

	PropagationFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "registry",
		Name:      "propagation_entry_failures_total",
		Help:      "Entries whose propagation transaction failed.",
	})

	PropagationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "registry",
		Name:      "propagation_duration_seconds",
		Help:      "Wall time of one propagation fan-out.",
		Buckets:   prometheus.DefBuckets,
	})

	FolderTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "registry",
		Name:      "folder_type_transitions_total",
		Help:      "Folder type changes by source and destination type.",
	}, []string{"from", "to"})

	UploadValidations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "registry",
		Name:      "bulk_upload_validations_total",
		Help:      "Bulk upload validation runs by result.",
	}, []string{"result"})

	FolderSizeCache = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "registry",
		Name:      "folder_size_cache_requests_total",
		Help:      "Folder size cache lookups by result.",
	}, []string{"result"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		PermissionDenied,
		PropagatedGrants,
		PropagationFailures,
		PropagationDuration,
		FolderTransitions,
		UploadValidations,
		FolderSizeCache,
	)
}

// Handler serves the registry collectors in the Prometheus text format.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
}
