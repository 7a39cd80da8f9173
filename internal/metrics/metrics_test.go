package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(linksRemoved.WithLabelValues("broken"))
	RecordLinkRemoved("broken")
	RecordLinkRemoved("broken")
	assert.Equal(t, before+2, testutil.ToFloat64(linksRemoved.WithLabelValues("broken")))

	SetActiveLinks(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(linksActive))

	okBefore := testutil.ToFloat64(reloads.WithLabelValues("success"))
	failBefore := testutil.ToFloat64(reloads.WithLabelValues("failure"))
	RecordReload(true)
	RecordReload(false)
	RecordReload(false)
	assert.Equal(t, okBefore+1, testutil.ToFloat64(reloads.WithLabelValues("success")))
	assert.Equal(t, failBefore+2, testutil.ToFloat64(reloads.WithLabelValues("failure")))
}

func TestSessionsGauge(t *testing.T) {
	start := testutil.ToFloat64(wsSessions)
	SessionOpened()
	SessionOpened()
	SessionClosed()
	assert.Equal(t, start+1, testutil.ToFloat64(wsSessions))
	SessionClosed()
}
