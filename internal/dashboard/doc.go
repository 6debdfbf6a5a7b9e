// Package dashboard serves the read-only view of the execution ledger: recent
// runs, matches for a day, summary counts, health probes and Prometheus
// metrics.
package dashboard
