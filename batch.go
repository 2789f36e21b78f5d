package pgsql

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/pgkit/pgsql/pgconn"
	"github.com/pgkit/pgsql/pgproto"
)

// LoadRows executes the prepared statement once per tuple in a single
// pipelined round trip and returns the summed rows-affected count.
//
// Every tuple is validated and encoded before any bytes are sent. An arity
// mismatch aborts the whole batch with a BatchArityError and zero statements
// executed.
func (ps *PreparedStatement) LoadRows(ctx context.Context, tuples [][]interface{}) (int64, error) {
	return ps.loadBatch(ctx, tuples, 0)
}

// LoadChunks loads tuples chunk by chunk, one pipelined round trip per
// chunk. All chunks are validated before the first is sent, so an arity
// mismatch anywhere aborts the whole load with the tuple's global position
// and zero statements executed.
func (ps *PreparedStatement) LoadChunks(ctx context.Context, chunks [][][]interface{}) (int64, error) {
	pos := 0
	for _, chunk := range chunks {
		for i, tuple := range chunk {
			if len(tuple) != len(ps.ParameterOIDs) {
				return 0, &BatchArityError{Position: pos + i, Expected: len(ps.ParameterOIDs), Actual: len(tuple)}
			}
		}
		pos += len(chunk)
	}

	var total int64
	pos = 0
	for _, chunk := range chunks {
		n, err := ps.loadBatch(ctx, chunk, pos)
		total += n
		if err != nil {
			return total, err
		}
		pos += len(chunk)
	}
	return total, nil
}

func (ps *PreparedStatement) loadBatch(ctx context.Context, tuples [][]interface{}, basePos int) (int64, error) {
	c := ps.conn

	if err := c.guard(ps.SQL); err != nil {
		return 0, err
	}
	if ps.invalidated() {
		return 0, ErrInvalidatedPortal
	}

	for i, tuple := range tuples {
		if len(tuple) != len(ps.ParameterOIDs) {
			return 0, &BatchArityError{Position: basePos + i, Expected: len(ps.ParameterOIDs), Actual: len(tuple)}
		}
	}

	type boundTuple struct {
		values  [][]byte
		formats []int16
	}
	bound := make([]boundTuple, len(tuples))
	for i, tuple := range tuples {
		values, formats, err := c.encodeParams(ps, tuple)
		if err != nil {
			return 0, errors.Wrapf(err, "tuple %d", basePos+i)
		}
		bound[i] = boundTuple{values: values, formats: formats}
	}

	resultFormats := c.resultFormats(ps.FieldDescriptions)

	startTime := time.Now()

	for _, bt := range bound {
		c.pgConn.Send(&pgproto.Bind{
			PreparedStatement:    ps.Name,
			ParameterFormatCodes: bt.formats,
			Parameters:           bt.values,
			ResultFormatCodes:    resultFormats,
		})
		c.pgConn.Send(&pgproto.Execute{})
	}
	c.pgConn.Send(&pgproto.Sync{})
	if err := c.pgConn.Flush(ctx); err != nil {
		return 0, err
	}

	var total int64
	var pgErr error
	for {
		msg, err := c.pgConn.ReceiveMessage(ctx)
		if err != nil {
			return total, err
		}

		switch msg := msg.(type) {
		case *pgproto.CommandComplete:
			total += pgconn.CommandTag(msg.CommandTag).RowsAffected()
		case *pgproto.ErrorResponse:
			// First error aborts the implicit transaction; later statements
			// in the pipeline are skipped by the server until Sync.
			if pgErr == nil {
				pgErr = pgconn.ErrorResponseToPgError(msg)
			}
		case *pgproto.ReadyForQuery:
			if pgErr != nil {
				if c.shouldLog(LogLevelError) {
					c.log(ctx, LogLevelError, "LoadRows", map[string]interface{}{"sql": ps.SQL, "tuples": len(tuples), "err": pgErr})
				}
				return total, pgErr
			}
			if c.shouldLog(LogLevelInfo) {
				c.log(ctx, LogLevelInfo, "LoadRows", map[string]interface{}{
					"sql": ps.SQL, "tuples": len(tuples),
					"rowsAffected": total, "time": time.Since(startTime),
				})
			}
			return total, nil
		}
	}
}
