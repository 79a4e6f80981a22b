// Package blob abstracts the object store that holds uploaded images and
// hands back publicly addressable URLs.
package blob

import "context"

// Store is the write-side interface to the blob store. Put stores data
// under key with the given content type and returns a public URL.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
