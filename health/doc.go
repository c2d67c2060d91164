// Package health reports gateway component status in actuator form.
//
// A Checker returns UP, DEGRADED or DOWN. The Aggregator runs checkers in
// parallel under a timeout and Overall folds their results. Handler and
// Mount expose the aggregate and per-component views over HTTP:
//
//	agg := health.NewAggregator(0)
//	agg.Register(health.NewTransportChecker(tc.Leaf(), 0))
//	agg.Register(material)
//	health.Mount(mux, "/actuator/health", agg)
//
// TransportChecker watches the presented certificate's validity window and
// MaterialChecker records key or trust store changes that need a restart.
package health
