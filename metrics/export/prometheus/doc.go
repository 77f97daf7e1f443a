// Package prometheus exposes engine metrics through client_golang.
//
// [Collector] reads a metrics snapshot on every scrape and publishes const
// metrics, so nothing is registered globally. [Handler] wraps a private
// registry with promhttp.
package prometheus
