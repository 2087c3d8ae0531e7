package metrics

import (
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/wager_layer/internal/engine/bus"
)

func TestLifecycleCounters(t *testing.T) {
	c := NewCollector("test")

	c.RecordSubmitted("mines", "local")
	c.RecordSubmitted("mines", "local")
	c.RecordSubmitted("coinflip", "vrf")
	c.RecordResolved("mines", "local", 2*time.Second)
	c.RecordWithdrawn("vrf")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.entriesSubmitted.WithLabelValues("mines", "local")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.entriesResolved.WithLabelValues("mines", "local")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.entriesWithdrawn.WithLabelValues("vrf")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.entriesPending))

	c.SetPending(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(c.entriesPending))
}

func TestVolumeIsInWholeTokens(t *testing.T) {
	c := NewCollector("test")
	amount, _ := new(big.Int).SetString("1500000000000000000", 10)
	c.RecordVolume("host", amount)
	c.RecordVolume("host", big.NewInt(0))
	c.RecordVolume("host", nil)
	assert.InDelta(t, 1.5, testutil.ToFloat64(c.volume.WithLabelValues("host")), 1e-12)
}

func TestOperationFailures(t *testing.T) {
	c := NewCollector("test")
	c.RecordOperation("submit", time.Millisecond, "")
	c.RecordOperation("submit", time.Millisecond, "ENTRY_IN_PROGRESS")
	c.RecordBatchFailures(3)
	c.RecordBonusMint(nil)
	c.RecordBonusMint(errors.New("mint failed"))
	c.RecordRefundFailure()

	assert.Equal(t, 1.0, testutil.ToFloat64(c.opFailures.WithLabelValues("submit", "ENTRY_IN_PROGRESS")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.batchFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.bonusMints.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.refundFailures))
}

func TestBusGauges(t *testing.T) {
	c := NewCollector("test")
	c.RecordBus(map[bus.Kind]bus.Stats{bus.KindOracleSubmit: {Active: 2, Waiting: 5}})
	assert.Equal(t, 2.0, testutil.ToFloat64(c.busActive.WithLabelValues("oracle_submit")))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.busWaiting.WithLabelValues("oracle_submit")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector("")
	c.RecordHTTP(http.MethodPost, "/v1/entries", http.StatusCreated, 3*time.Millisecond)
	c.RecordUnit("rps", "draw")
	c.RecordStoppedEarly()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "wager_http_requests_total")
	assert.Contains(t, body, `wager_settlement_units_total{class="draw",game="rps"} 1`)
	assert.Contains(t, body, "wager_uptime_seconds")
	assert.Greater(t, c.Uptime(), time.Duration(0))
}
