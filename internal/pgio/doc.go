// Package pgio is a low-level toolkit building blocks for the PostgreSQL
// wire protocol. All integers are written in network byte order.
package pgio
