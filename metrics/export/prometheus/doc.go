// Package prometheus renders magicgate metrics in Prometheus text exposition
// format. Counter names are prefixed magicgate_*_total.
//
// Nothing is registered globally; callers mount Handler on their own listener.
package prometheus
