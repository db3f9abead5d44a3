// Package cache hosts the coordinator that sits between the network layer and
// the two local stores. On Save it clones the record, moves every embedded
// thumbnail into the blob store and commits the stripped JSON as one
// timestamped envelope. On Load it applies the TTL policy (evicting on read)
// and puts the thumbnails back, degrading to a null image whenever a blob is
// missing or unreadable. Storage problems are logged and reported to the
// Observer; they never surface as errors to the caller, because the network
// is always the authoritative fallback.
package cache
