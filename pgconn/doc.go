// Package pgconn is a low-level PostgreSQL database driver.
//
// pgconn provides lower level access to the PostgreSQL connection than a
// database/sql style interface. It operates at nearly the same level as the
// C library libpq: the startup handshake, authentication, and the demux of
// asynchronous server traffic live here, while query semantics live in the
// packages built on top.
package pgconn
