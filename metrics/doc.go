// Package metrics counts redemption, issuance and gate decisions with
// allocation-free atomic counters. Rendering lives under metrics/export.
package metrics
