package zaap

import (
	"github.com/gjermundgaraba/libzaap/fees"
	"github.com/gjermundgaraba/libzaap/ledger"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts committed settlement events.
type Metrics struct {
	settlements         *prometheus.CounterVec
	containedFailures   *prometheus.CounterVec
	feeTransferFailures *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zaap",
			Name:      "settlements_total",
			Help:      "Committed settlements by direction and outcome.",
		}, []string{"direction", "outcome"}),
		containedFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zaap",
			Name:      "contained_failures_total",
			Help:      "Receipt failures converted into a fallback delivery.",
		}, []string{"reason"}),
		feeTransferFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zaap",
			Name:      "fee_transfer_failures_total",
			Help:      "Fee or partner cuts that could not be paid.",
		}, []string{"direction"}),
	}

	for _, collector := range []prometheus.Collector{m.settlements, m.containedFailures, m.feeTransferFailures} {
		if err := reg.Register(collector); err != nil {
			return nil, errors.Wrap(err, "failed to register zaap metrics")
		}
	}

	return m, nil
}

// HandleLogs has the shape of a chain log subscriber.
func (m *Metrics) HandleLogs(logs []ledger.Log) {
	for _, log := range logs {
		switch event := log.Data.(type) {
		case ZaapedIn:
			m.settlements.WithLabelValues(string(fees.Inbound), "dispatched").Inc()
		case ZaapedOut:
			m.settlements.WithLabelValues(string(fees.Outbound), event.Outcome.String()).Inc()
		case ZaapErrored:
			m.containedFailures.WithLabelValues(string(event.Kind)).Inc()
		case FeeTransferFailed:
			m.feeTransferFailures.WithLabelValues(string(event.Direction)).Inc()
		}
	}
}
