package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dcc_queue_messages_processed_total",
		Help: "Directives processed successfully, per queue.",
	}, []string{"queue"})

	messagesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dcc_queue_messages_failed_total",
		Help: "Directives that failed processing, per queue.",
	}, []string{"queue"})
)
