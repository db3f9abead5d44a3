// Package diskstore provides the directory-backed primitive shared by the
// file metadata backend and the file blob backend. Every entry is a single
// file written through a temp file + rename so readers never observe a
// partial write, and writers of the same entry are serialised by a
// reference-counted per-entry lock.
package diskstore
