package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	streamHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dcc_stream_block_height",
		Help: "Last block height processed by the event stream.",
	})
	streamReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dcc_stream_reconnects_total",
		Help: "Number of event stream reconnect cycles.",
	})
	streamStaleness = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dcc_stream_stale_total",
		Help: "Number of times the liveness monitor declared the stream stale.",
	})
	backfillBlocksDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dcc_stream_backfill_blocks_total",
		Help: "Number of blocks dispatched to the consumer during backfill.",
	})
)
