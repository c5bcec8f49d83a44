package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TwilioRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twimgr_twilio_requests_total",
			Help: "Upstream Twilio API requests by resource and outcome",
		},
		[]string{"resource", "status"}, // accounts|numbers|addresses|bundles , ok|error
	)

	TransfersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twimgr_transfers_total",
			Help: "Phone number transfers by result",
		},
		[]string{"result"}, // completed|recovered|failed
	)

	SubaccountCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twimgr_subaccount_cache_total",
			Help: "Subaccount list cache lookups",
		},
		[]string{"result"}, // hit|miss|bypass
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		TwilioRequestsTotal,
		TransfersTotal,
		SubaccountCacheTotal,
	)
}
