package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Счётчики ядра синхронизации ходов. Экспортируются через /metrics.
var (
	TxRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ludoduel_store_tx_retries_total",
		Help: "Optimistic transaction conflicts that triggered a retry.",
	})

	MovesApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ludoduel_moves_applied_total",
		Help: "Moves committed by the turn engine.",
	})

	MovesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ludoduel_moves_rejected_total",
		Help: "Move attempts rejected before or inside the transaction.",
	}, []string{"reason"})

	Captures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ludoduel_captures_total",
		Help: "Opposing tokens sent home by committed moves.",
	})

	Finalizations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ludoduel_finalizations_total",
		Help: "Finalize transactions that actually wrote a winner.",
	})
)
