// Package internaldefs holds the metric names, help strings and histogram
// bounds shared by exporters.
package internaldefs
