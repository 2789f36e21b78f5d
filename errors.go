package pgsql

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNoRows occurs when rows are expected but none are returned.
var ErrNoRows = errors.New("no rows in result set")

// ErrTxClosed occurs when a transaction handle is used after Commit or
// Rollback already closed it.
var ErrTxClosed = errors.New("tx is closed")

// ErrTxCommitRollback occurs when an error has occurred in a transaction and
// Commit() is called. PostgreSQL accepts COMMIT on aborted transactions, but
// it is treated as ROLLBACK.
var ErrTxCommitRollback = errors.New("commit unexpectedly resulted in rollback")

// ErrTxAborted occurs when the server reports the current transaction as
// failed and a non-rollback statement is refused locally before any bytes
// are sent.
var ErrTxAborted = errors.New("current transaction is aborted, commands ignored until end of transaction block")

// ErrConnBusy occurs when an operation is attempted while a streaming portal
// is still open on the connection. The protocol allows only one statement
// mid-flight per connection.
var ErrConnBusy = errors.New("conn busy: streaming portal is open")

// ErrInvalidatedPortal occurs when resuming a portal whose backing unnamed
// statement was replaced by a later Prepare.
var ErrInvalidatedPortal = errors.New("portal invalidated: unnamed statement was replaced")

// ParameterCountError occurs when the number of bound arguments does not
// match the statement's declared parameter count. It is detected before any
// bytes are sent.
type ParameterCountError struct {
	Expected int
	Actual   int
}

func (e *ParameterCountError) Error() string {
	return fmt.Sprintf("expected %d arguments, got %d", e.Expected, e.Actual)
}

// RowShapeError occurs when a DataRow's column count disagrees with the
// statement's described column count.
type RowShapeError struct {
	ExpectedColumns int
	ActualColumns   int
}

func (e *RowShapeError) Error() string {
	return fmt.Sprintf("row described with %d columns but received %d", e.ExpectedColumns, e.ActualColumns)
}

// BatchArityError occurs when a tuple in a batch load has the wrong number
// of values. Position is the zero-based index of the offending tuple. The
// whole batch is aborted with no statements executed.
type BatchArityError struct {
	Position int
	Expected int
	Actual   int
}

func (e *BatchArityError) Error() string {
	return fmt.Sprintf("batch tuple %d: expected %d values, got %d", e.Position, e.Expected, e.Actual)
}

// TxNestingError occurs when transaction frames are closed out of LIFO
// order. No SQL is issued for the misordered operation.
type TxNestingError struct {
	Op    string
	Depth int
}

func (e *TxNestingError) Error() string {
	return fmt.Sprintf("cannot %s: transaction depth is %d", e.Op, e.Depth)
}

// ScanArgError wraps a failure converting a column to a destination with the
// column index.
type ScanArgError struct {
	ColumnIndex int
	Err         error
}

func (e *ScanArgError) Error() string {
	return fmt.Sprintf("can't scan into dest[%d]: %v", e.ColumnIndex, e.Err)
}

func (e *ScanArgError) Unwrap() error {
	return e.Err
}
