package subscriptions

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "subscriptiongarden"

const (
	opSubscribe   = "subscribe"
	opUnsubscribe = "unsubscribe"
	opStatus      = "status"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscriptions",
			Name:      "operations_total",
			Help:      "Total subscription operations by result",
		},
		[]string{"operation", "result"},
	)

	confirmationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscriptions",
			Name:      "confirmations_total",
			Help:      "Total confirmation emails by kind and status",
		},
		[]string{"kind", "status"},
	)
)

var resultLabels = []struct {
	err   error
	label string
}{
	{ErrInvalidEmail, "invalid_email"},
	{ErrInvalidCategory, "invalid_category"},
	{ErrAlreadySubscribed, "already_subscribed"},
	{ErrAlreadyUnsubscribed, "already_unsubscribed"},
	{ErrNeverSubscribed, "never_subscribed"},
	{ErrNotSubscribed, "not_subscribed"},
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	for _, l := range resultLabels {
		if errors.Is(err, l.err) {
			return l.label
		}
	}
	return "error"
}

func recordOperation(operation string, err error) {
	operationsTotal.WithLabelValues(operation, resultLabel(err)).Inc()
}

// RecordConfirmation records a confirmation email attempt.
func RecordConfirmation(kind MessageKind, err error) {
	status := "sent"
	if err != nil {
		status = "failed"
	}
	confirmationsSent.WithLabelValues(string(kind), status).Inc()
}
