package metrics

import "github.com/prometheus/client_golang/prometheus"

// Token lifecycle and account security metrics. Standalone package so engine
// packages can increment counters without importing each other.

var (
	TokenPairsIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "token_pairs_issued_total",
		Help: "Access/refresh pairs minted (initial issuance and rotation)",
	})

	RefreshReuseDetected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "refresh_reuse_detected_total",
		Help: "Refresh calls rejected because the token was already rotated",
	})

	ChainsRevoked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "token_chains_revoked_total",
		Help: "Rotation chains revoked end to end",
	})

	Lockouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "account_lockouts_total",
		Help: "Accounts locked after exceeding the failed-login threshold",
	})

	OneTimeCodesIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "one_time_codes_issued_total",
		Help: "One-time verification codes created",
	})

	VersionConflictRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "version_conflict_retries_total",
		Help: "Conditional saves retried after losing a version race",
	})
)

// Register registers all engine metrics on reg (default registry when nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		TokenPairsIssued,
		RefreshReuseDetected,
		ChainsRevoked,
		Lockouts,
		OneTimeCodesIssued,
		VersionConflictRetries,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
