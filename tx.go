package pgsql

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
)

// TxIsoLevel is the transaction isolation level.
type TxIsoLevel string

// Transaction isolation levels.
const (
	Serializable    = TxIsoLevel("serializable")
	RepeatableRead  = TxIsoLevel("repeatable read")
	ReadCommitted   = TxIsoLevel("read committed")
	ReadUncommitted = TxIsoLevel("read uncommitted")
)

// TxAccessMode is the transaction access mode.
type TxAccessMode string

// Transaction access modes.
const (
	ReadWrite = TxAccessMode("read write")
	ReadOnly  = TxAccessMode("read only")
)

// TxDeferrableMode is the transaction deferrable mode.
type TxDeferrableMode string

// Transaction deferrable modes.
const (
	Deferrable    = TxDeferrableMode("deferrable")
	NotDeferrable = TxDeferrableMode("not deferrable")
)

// TxOptions are the options for a top level transaction. Zero values use the
// server defaults.
type TxOptions struct {
	IsoLevel       TxIsoLevel
	AccessMode     TxAccessMode
	DeferrableMode TxDeferrableMode
}

func (txOptions TxOptions) beginSQL() string {
	buf := []byte("begin")
	if txOptions.IsoLevel != "" {
		buf = append(buf, " isolation level "...)
		buf = append(buf, txOptions.IsoLevel...)
	}
	if txOptions.AccessMode != "" {
		buf = append(buf, ' ')
		buf = append(buf, txOptions.AccessMode...)
	}
	if txOptions.DeferrableMode != "" {
		buf = append(buf, ' ')
		buf = append(buf, txOptions.DeferrableMode...)
	}
	return string(buf)
}

// Tx is a handle to one frame of the connection's transaction stack. The
// outermost frame maps to BEGIN/COMMIT/ROLLBACK; nested frames map to
// savepoints. Frames must be closed innermost first.
type Tx struct {
	conn   *Conn
	depth  int // position in the stack, outermost frame is 1
	closed bool
}

// Begin starts a transaction, or a savepoint when a transaction is already
// open, with the default transaction options.
func (c *Conn) Begin(ctx context.Context) (*Tx, error) {
	return c.BeginTx(ctx, TxOptions{})
}

// BeginTx starts a transaction with txOptions, or a savepoint when a
// transaction is already open. Options are only valid on the outermost
// frame; a savepoint cannot change isolation.
func (c *Conn) BeginTx(ctx context.Context, txOptions TxOptions) (*Tx, error) {
	var sql string
	if c.txDepth == 0 {
		sql = txOptions.beginSQL()
	} else {
		if txOptions != (TxOptions{}) {
			return nil, errors.New("cannot set transaction options on a nested transaction")
		}
		sql = "savepoint " + savepointName(c.txDepth)
	}

	if _, err := c.Exec(ctx, sql); err != nil {
		return nil, err
	}

	c.txDepth++
	return &Tx{conn: c, depth: c.txDepth}, nil
}

// Commit commits the frame: COMMIT for the outermost frame, RELEASE
// SAVEPOINT for a nested one.
//
// Committing the outermost frame of a failed transaction rolls it back
// instead and returns ErrTxCommitRollback. Committing out of LIFO order
// returns a TxNestingError and issues no SQL.
func (tx *Tx) Commit(ctx context.Context) error {
	if tx.closed {
		return ErrTxClosed
	}
	c := tx.conn
	if tx.depth != c.txDepth {
		return &TxNestingError{Op: "commit", Depth: c.txDepth}
	}

	if tx.depth == 1 {
		if c.pgConn.TxStatus() == 'E' {
			_, rollbackErr := c.exec(ctx, "rollback")
			tx.closed = true
			c.txDepth--
			if rollbackErr != nil {
				return rollbackErr
			}
			return ErrTxCommitRollback
		}
		if _, err := c.Exec(ctx, "commit"); err != nil {
			return err
		}
		tx.closed = true
		c.txDepth--
		return nil
	}

	// A failed transaction refuses RELEASE; the guard surfaces ErrTxAborted
	// and the frame stays open for Rollback.
	if _, err := c.Exec(ctx, "release savepoint "+savepointName(tx.depth-1)); err != nil {
		return err
	}
	tx.closed = true
	c.txDepth--
	return nil
}

// Rollback rolls the frame back: ROLLBACK for the outermost frame, ROLLBACK
// TO SAVEPOINT plus RELEASE for a nested one. Rollback is always accepted by
// a failed transaction.
//
// Rolling back out of LIFO order returns a TxNestingError and issues no SQL.
func (tx *Tx) Rollback(ctx context.Context) error {
	if tx.closed {
		return ErrTxClosed
	}
	c := tx.conn
	if tx.depth != c.txDepth {
		return &TxNestingError{Op: "rollback", Depth: c.txDepth}
	}

	var sql string
	if tx.depth == 1 {
		sql = "rollback"
	} else {
		name := savepointName(tx.depth - 1)
		sql = "rollback to savepoint " + name + "; release savepoint " + name
	}

	if _, err := c.exec(ctx, sql); err != nil {
		return err
	}
	tx.closed = true
	c.txDepth--
	return nil
}

// Conn returns the connection the frame is running on.
func (tx *Tx) Conn() *Conn { return tx.conn }

// Depth returns the frame's position in the transaction stack. The
// outermost frame is 1.
func (tx *Tx) Depth() int { return tx.depth }

func savepointName(depth int) string {
	return "s" + strconv.Itoa(depth)
}
