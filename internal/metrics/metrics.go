// Package metrics exposes Prometheus instruments for sign links and the host transport.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	linksCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signlink_links_created_total",
		Help: "Total number of sign pairs linked",
	})
	linksRemoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signlink_links_removed_total",
		Help: "Total number of sign links removed by reason",
	}, []string{"reason"}) // reason=broken|partner_missing
	linksActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signlink_links_active",
		Help: "Number of sign links currently stored",
	})
	teleports = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signlink_teleports_total",
		Help: "Total number of teleports through linked signs",
	})
	permissionDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signlink_permission_denied_total",
		Help: "Actions refused for insufficient permission level",
	}, []string{"action"}) // action=break|command
	selectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signlink_selection_rejected_total",
		Help: "Link attempts rejected by reason",
	}, []string{"reason"}) // reason=already_linked|same_sign
	fileErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signlink_file_errors_total",
		Help: "Failures reading or writing plugin files",
	}, []string{"file"})
	reloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signlink_reloads_total",
		Help: "Configuration reloads by outcome",
	}, []string{"outcome"}) // outcome=success|failure

	wsSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signlink_ws_sessions",
		Help: "Open websocket sessions",
	})
	worldTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signlink_world_ticks_total",
		Help: "World ticks stepped",
	})
)

func RecordLinkCreated()                   { linksCreated.Inc() }
func RecordLinkRemoved(reason string)      { linksRemoved.WithLabelValues(reason).Inc() }
func SetActiveLinks(n int)                 { linksActive.Set(float64(n)) }
func RecordTeleport()                      { teleports.Inc() }
func RecordPermissionDenied(action string) { permissionDenied.WithLabelValues(action).Inc() }
func RecordSelectionRejected(reason string) {
	selectionRejected.WithLabelValues(reason).Inc()
}
func RecordFileError(file string) { fileErrors.WithLabelValues(file).Inc() }

func RecordReload(ok bool) {
	if ok {
		reloads.WithLabelValues("success").Inc()
		return
	}
	reloads.WithLabelValues("failure").Inc()
}

func SessionOpened() { wsSessions.Inc() }
func SessionClosed() { wsSessions.Dec() }
func RecordTick()    { worldTicks.Inc() }
