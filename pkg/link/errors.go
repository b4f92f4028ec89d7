package link

import "errors"

// ErrChunkTooLarge is returned by Send when the chunk exceeds the
// endpoint's configured MaxChunk (255 bytes by default).
var ErrChunkTooLarge = errors.New("link: chunk exceeds max chunk size")

// ErrShutdown is returned by Send, Deliver and any other blocking call
// still in flight, or issued after, Endpoint.Close.
var ErrShutdown = errors.New("link: endpoint shut down")
