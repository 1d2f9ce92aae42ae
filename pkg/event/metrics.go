package event

import "github.com/prometheus/client_golang/prometheus"

const prometheusMetricNamespace = "cur_forwarder"

var (
	recordsProcessedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: prometheusMetricNamespace,
			Name:      "records_processed_total",
			Help:      "Number of event records processed successfully.",
		},
	)

	recordsErroredCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: prometheusMetricNamespace,
			Name:      "records_errored_total",
			Help:      "Number of event records that failed processing.",
		},
	)

	manifestDataFilesCopiedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: prometheusMetricNamespace,
			Name:      "manifest_data_files_copied_total",
			Help:      "Number of data files copied or verified present during manifest expansion.",
		},
	)
)

func init() {
	prometheus.MustRegister(recordsProcessedCounter)
	prometheus.MustRegister(recordsErroredCounter)
	prometheus.MustRegister(manifestDataFilesCopiedCounter)
}
