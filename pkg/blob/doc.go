/*
Package blob implements Workshop's content-addressed file store.

Blobs are written to a flat directory named by their SHA-256 digest in the
form "sha256:<64 hex>". Writes are idempotent: uploading bytes that already
exist returns the same digest without touching the file. Digests are validated
before any filesystem access, and opened paths are checked against the store
root, so a malformed or traversal digest can never escape the directory.
*/
package blob
