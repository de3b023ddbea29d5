// Package stream provides typed little-endian encoders and decoders over
// plain byte sources and sinks.
//
// Reads and writes follow io semantics: a request for more data than is
// available returns a short count together with an error, never a panic.
// Typed decoders report a short source as io.ErrUnexpectedEOF, or io.EOF when
// nothing at all could be read.
package stream
