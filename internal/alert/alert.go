// Package alert raises operator-visible signals for infrastructure faults.
//
// Every alert is logged at error level with Marker in front of the message so
// log shippers can route it to the operators, and counted in
// okupy_alerts_total. Delivering alerts by e-mail is left to the log pipeline.
package alert

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Marker prefixes every alert message.
const Marker = "[okupy] ERROR:"

// KindDirectoryUnavailable is the kind label for directory outages.
const KindDirectoryUnavailable = "directory_unavailable"

var (
	alerts = promauto.NewCounterVec( //nolint:gochecknoglobals
		prometheus.CounterOpts{
			Name: "okupy_alerts_total",
			Help: "Number of operator alerts raised, by kind.",
		},
		[]string{"kind"},
	)
)

// Notifier receives infrastructure alerts.
type Notifier interface {
	// DirectoryUnavailable is raised when a login attempt could not reach the directory.
	DirectoryUnavailable(username string, err error)
}

// LogNotifier logs alerts with zerolog.
type LogNotifier struct{}

// DirectoryUnavailable implements Notifier.
func (LogNotifier) DirectoryUnavailable(username string, err error) {
	alerts.WithLabelValues(KindDirectoryUnavailable).Inc()

	log.Error().
		Err(err).
		Str("alert", KindDirectoryUnavailable).
		Str("username", username).
		Msg(Marker + " Can't contact the LDAP server or the database")
}

// Recorder collects alerts in memory. It is meant for tests.
type Recorder struct {
	Directory []RecordedAlert
}

// RecordedAlert is one alert kept by Recorder.
type RecordedAlert struct {
	Username string
	Err      error
}

// DirectoryUnavailable implements Notifier.
func (r *Recorder) DirectoryUnavailable(username string, err error) {
	r.Directory = append(r.Directory, RecordedAlert{Username: username, Err: err})
}
