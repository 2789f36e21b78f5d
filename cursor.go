package pgsql

import (
	"context"

	"github.com/pkg/errors"

	"github.com/pgkit/pgsql/pgconn"
	"github.com/pgkit/pgsql/pgproto"
)

// Chunks is a streaming cursor over a suspended portal. Each NextChunk
// resumes the portal for up to chunkSize more rows.
//
// The portal lives in the implicit transaction opened by its first Execute,
// so no Sync is sent until the portal completes or is closed. While a Chunks
// is open the connection refuses all other statements with ErrConnBusy.
type Chunks struct {
	conn          *Conn
	stmt          *PreparedStatement
	chunkSize     int32
	resultFormats []int16

	pending    *Rows // chunk read when the portal was opened
	finished   bool  // CommandComplete received
	synced     bool  // Sync sent and ReadyForQuery consumed
	closed     bool
	commandTag pgconn.CommandTag
}

// Chunks prepares sql in the unnamed statement slot and opens a streaming
// cursor over it. chunkSize <= 0 uses the config's DefaultChunkSize.
func (c *Conn) Chunks(ctx context.Context, sql string, chunkSize int32, args ...interface{}) (*Chunks, error) {
	ps, err := c.Prepare(ctx, "", sql)
	if err != nil {
		return nil, err
	}
	return ps.Chunks(ctx, chunkSize, args...)
}

// Chunks opens a streaming cursor over the prepared statement. The first
// chunk is fetched eagerly so a statement that fails to bind or execute
// reports its error here rather than on the first NextChunk.
func (ps *PreparedStatement) Chunks(ctx context.Context, chunkSize int32, args ...interface{}) (*Chunks, error) {
	c := ps.conn

	if err := c.guard(ps.SQL); err != nil {
		return nil, err
	}
	if ps.invalidated() {
		return nil, ErrInvalidatedPortal
	}
	if len(ps.FieldDescriptions) == 0 {
		return nil, errors.New("statement returns no rows")
	}

	if chunkSize <= 0 {
		chunkSize = c.config.DefaultChunkSize
	}
	if chunkSize <= 0 {
		chunkSize = 256
	}

	paramValues, paramFormats, err := c.encodeParams(ps, args)
	if err != nil {
		return nil, err
	}
	resultFormats := c.resultFormats(ps.FieldDescriptions)

	if c.shouldLog(LogLevelDebug) {
		c.log(ctx, LogLevelDebug, "Chunks", map[string]interface{}{"sql": ps.SQL, "args": logQueryArgs(args), "chunkSize": chunkSize})
	}

	ck := &Chunks{conn: c, stmt: ps, chunkSize: chunkSize, resultFormats: resultFormats}

	c.pgConn.Send(&pgproto.Bind{
		PreparedStatement:    ps.Name,
		ParameterFormatCodes: paramFormats,
		Parameters:           paramValues,
		ResultFormatCodes:    resultFormats,
	})
	c.pgConn.Send(&pgproto.Execute{MaxRows: uint32(chunkSize)})
	c.pgConn.Send(&pgproto.Flush{})
	if err := c.pgConn.Flush(ctx); err != nil {
		return nil, err
	}

	// The portal holds the connection until it completes or is closed.
	c.activePortal = ck

	rows, err := ck.readChunk(ctx)
	if err != nil {
		return nil, err
	}
	// A statement with no rows completes immediately and yields no chunks.
	if !ck.finished || rows.Len() > 0 {
		ck.pending = rows
	}

	return ck, nil
}

// NextChunk returns the next chunk of up to chunkSize rows. The chunk that
// completes the statement carries its CommandTag; after it, NextChunk
// returns (nil, nil) and the connection is idle again.
func (ck *Chunks) NextChunk(ctx context.Context) (*Rows, error) {
	if ck.closed {
		return nil, errors.New("chunks closed")
	}

	if ck.pending != nil {
		rows := ck.pending
		ck.pending = nil
		return rows, nil
	}

	if ck.finished {
		return nil, nil
	}

	if ck.stmt.invalidated() {
		return nil, ErrInvalidatedPortal
	}

	c := ck.conn
	c.pgConn.Send(&pgproto.Execute{MaxRows: uint32(ck.chunkSize)})
	c.pgConn.Send(&pgproto.Flush{})
	if err := c.pgConn.Flush(ctx); err != nil {
		return nil, err
	}

	rows, err := ck.readChunk(ctx)
	if err != nil {
		return nil, err
	}
	// When the row count is an exact multiple of chunkSize the server
	// suspends after the last row, so the completing Execute comes back
	// empty. That fetch is bookkeeping, not a chunk.
	if ck.finished && rows.Len() == 0 {
		return nil, nil
	}
	return rows, nil
}

// readChunk consumes one Execute's responses. PortalSuspended means the row
// limit was hit with rows remaining; CommandComplete means the result set is
// exhausted and the portal can be synced away.
func (ck *Chunks) readChunk(ctx context.Context) (*Rows, error) {
	c := ck.conn
	rows := &Rows{conn: c, fieldDescriptions: ck.stmt.FieldDescriptions, resultFormats: ck.resultFormats}

	for {
		msg, err := c.pgConn.ReceiveMessage(ctx)
		if err != nil {
			return nil, err
		}

		switch msg := msg.(type) {
		case *pgproto.BindComplete:
		case *pgproto.DataRow:
			if len(msg.Values) != len(rows.fieldDescriptions) {
				shapeErr := &RowShapeError{ExpectedColumns: len(rows.fieldDescriptions), ActualColumns: len(msg.Values)}
				ck.finished = true
				if err := ck.finalize(ctx); err != nil {
					return nil, err
				}
				return nil, shapeErr
			}
			rows.rows = append(rows.rows, copyRow(msg.Values))
		case *pgproto.PortalSuspended:
			return rows, nil
		case *pgproto.CommandComplete:
			ck.finished = true
			ck.commandTag = pgconn.CommandTag(msg.CommandTag)
			rows.commandTag = ck.commandTag
			if err := ck.finalize(ctx); err != nil {
				return nil, err
			}
			return rows, nil
		case *pgproto.ErrorResponse:
			pgErr := pgconn.ErrorResponseToPgError(msg)
			ck.finished = true
			if err := ck.finalize(ctx); err != nil {
				return nil, err
			}
			return nil, pgErr
		}
	}
}

// finalize sends the deferred Sync, ending the implicit transaction window,
// and drains to ReadyForQuery. The connection is idle afterward.
func (ck *Chunks) finalize(ctx context.Context) error {
	if ck.synced {
		return nil
	}
	ck.synced = true
	ck.conn.activePortal = nil

	c := ck.conn
	c.pgConn.Send(&pgproto.Sync{})
	if err := c.pgConn.Flush(ctx); err != nil {
		return err
	}

	var pgErr error
	for {
		msg, err := c.pgConn.ReceiveMessage(ctx)
		if err != nil {
			return err
		}

		switch msg := msg.(type) {
		case *pgproto.ErrorResponse:
			pgErr = pgconn.ErrorResponseToPgError(msg)
		case *pgproto.ReadyForQuery:
			return pgErr
		}
	}
}

// Close destroys the portal if it is still open and returns the connection
// to idle. It is safe to call Close multiple times.
func (ck *Chunks) Close(ctx context.Context) error {
	if ck.closed {
		return nil
	}
	ck.closed = true
	ck.pending = nil

	if ck.synced {
		return nil
	}

	ck.conn.pgConn.Send(&pgproto.Close{ObjectType: 'P'})
	return ck.finalize(ctx)
}

// CommandTag returns the statement's command tag. It is empty until the
// portal has completed.
func (ck *Chunks) CommandTag() pgconn.CommandTag { return ck.commandTag }

// FieldDescriptions returns the result column descriptions.
func (ck *Chunks) FieldDescriptions() []pgproto.FieldDescription {
	return ck.stmt.FieldDescriptions
}
