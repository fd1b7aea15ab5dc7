// Package memory provides in-process implementations of the driven ports.
// They back single-instance deployments (DATABASE_URL=memory) and tests.
package memory
