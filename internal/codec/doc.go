// Package codec converts between data URIs ("data:<mime>;base64,<payload>")
// and raw bytes. It is stateless: the cache coordinator uses it to lift
// thumbnails out of JSON records before they are persisted and to put them
// back when a record is read.
package codec
