// Package batch runs per-item operations over a bounded worker pool and
// aggregates their outcomes in submission order.
package batch
