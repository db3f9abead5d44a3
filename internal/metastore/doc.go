// Package metastore persists one {timestamp, payload} envelope per cache key.
// It knows nothing about images: the coordinator strips them before calling
// Put. Access is synchronous; the backend (file, sqlite, redis or memory) is
// chosen by configuration and hidden behind the Backend interface.
package metastore
