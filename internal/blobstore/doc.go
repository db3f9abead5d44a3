// Package blobstore keeps thumbnail bytes out of the metadata store. Blobs are
// keyed by the owning item's id and live independently of the envelopes that
// reference them: writes are best effort and reads fail with a typed error,
// so a broken or missing backend only ever costs a refetch of the image.
package blobstore
