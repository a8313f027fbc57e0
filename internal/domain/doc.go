// Package domain holds the core types shared across the service: normalized
// event payloads, fan-out message shapes, and the worker error taxonomy.
// It has no dependencies on other internal packages.
package domain
