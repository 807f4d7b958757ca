package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/okupy/okupy/internal/identity"
)

const (
	outcomeSuccess  = "success"
	outcomeNoMatch  = "no_match"
	outcomeDisabled = "disabled"
	outcomeError    = "error"

	sourceNone identity.Source = "none"
)

var (
	resolutions = promauto.NewCounterVec( //nolint:gochecknoglobals
		prometheus.CounterOpts{
			Name: "okupy_auth_resolutions_total",
			Help: "Number of identity resolutions, by deciding credential source and outcome.",
		},
		[]string{"source", "outcome"},
	)
)

func observe(source identity.Source, outcome string) {
	resolutions.WithLabelValues(string(source), outcome).Inc()
}
