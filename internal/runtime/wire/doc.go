/*
Package wire defines the frames exchanged between the host and
out-of-process workers, and the codecs that carry them.

Remote workers speak JSON text frames over a websocket. Child processes
speak CBOR frames on stdio, each prefixed with its length as a 4-byte
big-endian integer.

A Dispatcher applies frames arriving from a worker to its worker.Link;
FromMessage and FromControl build the frames going the other way.
*/
package wire
