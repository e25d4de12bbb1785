// Package runloop implements the background data runloop: a cooperative,
// chunked task engine that keeps a frontend's main loop responsive while
// files are read, resources are fetched over HTTP, and compressed images are
// decoded.
//
// ARCHITECTURE:
//
// The engine is three independent task lanes plus two thin drivers, each
// advanced once per tick:
//
//   - file lane: streams a file into memory via the non-blocking read
//     primitive, then hands the bytes to a completion callback;
//   - image sub-lane: fed by the file lane, progressively parses PNG chunks,
//     converts the pixel stream to RGBA, and hands the buffer to the
//     renderer;
//   - HTTP lane: establishes a connection, transfers a body, and dispatches
//     it to a named sink;
//   - overlay and DB drivers: step externally owned state machines.
//
// Each lane owns a bounded command queue and processes one transfer at a
// time as a small state machine (poll, transfer, parse, free). Work is
// sliced into fixed increments per tick so no transfer starves the others
// and a tick never blocks on I/O.
//
// Two concurrency modes with identical observable semantics: inline
// (the host's main loop calls Iterate) and threaded (a worker goroutine
// ticks by itself and Iterate becomes a no-op). All lane state is mutated
// by exactly one goroutine; producers reach the engine only through the
// thread-safe queues behind Post.
package runloop
