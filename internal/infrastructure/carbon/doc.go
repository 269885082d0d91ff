// Package carbon writes metric lines to a Graphite carbon collector using
// the plaintext protocol.
//
// # Delivery
//
// Every Flush opens a fresh TCP connection, writes the batch, and closes
// the connection. There is no buffering or retry: a batch that cannot be
// delivered is dropped and the error is returned to the caller.
//
//	<path> <value> <timestamp>\n
//
// # Usage
//
//	w := carbon.NewWriter(cfg.Carbon)
//	if err := w.Flush(ctx, lines); err != nil {
//	    logger.Warn("flush failed", "error", err)
//	}
package carbon
