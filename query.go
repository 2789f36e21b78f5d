package pgsql

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/pgkit/pgsql/pgconn"
	"github.com/pgkit/pgsql/pgproto"
	"github.com/pgkit/pgsql/pgtype"
)

// Rows is the buffered result of an executed statement. The full result set
// is read from the server before Rows is returned, so Next never performs
// I/O. Use Chunks for incremental consumption of large results.
type Rows struct {
	conn              *Conn
	fieldDescriptions []pgproto.FieldDescription
	resultFormats     []int16
	rows              [][][]byte
	rowIdx            int
	values            [][]byte
	commandTag        pgconn.CommandTag
	err               error
}

// FieldDescriptions returns the result column descriptions.
func (rows *Rows) FieldDescriptions() []pgproto.FieldDescription {
	return rows.fieldDescriptions
}

// CommandTag returns the command tag reported when the statement completed.
// It is empty for a chunk of a still-suspended portal.
func (rows *Rows) CommandTag() pgconn.CommandTag { return rows.commandTag }

// Len returns the number of rows in the buffer.
func (rows *Rows) Len() int { return len(rows.rows) }

// Next advances to the next row. It returns false when the buffer is
// exhausted.
func (rows *Rows) Next() bool {
	if rows.rowIdx >= len(rows.rows) {
		rows.values = nil
		return false
	}
	rows.values = rows.rows[rows.rowIdx]
	rows.rowIdx++
	return true
}

// Err reports an error encountered while iterating. The whole result set is
// buffered before Query returns, so failures normally surface there; Err
// exists for callers written against database/sql-style iteration.
func (rows *Rows) Err() error { return rows.err }

// RawValues returns the current row's raw wire values. NULL columns are nil.
func (rows *Rows) RawValues() [][]byte { return rows.values }

// Scan decodes the current row into dest. dest must have one element per
// result column. A nil destination skips its column.
func (rows *Rows) Scan(dest ...interface{}) error {
	if len(dest) != len(rows.fieldDescriptions) {
		return errors.Errorf("expected %d destinations, got %d", len(rows.fieldDescriptions), len(dest))
	}

	for i, d := range dest {
		if d == nil {
			continue
		}
		if err := rows.conn.decodeColumn(rows.fieldDescriptions[i], rows.resultFormats[i], rows.values[i], d); err != nil {
			return &ScanArgError{ColumnIndex: i, Err: err}
		}
	}
	return nil
}

// Values decodes the current row into the natural Go value of each column's
// registered type.
func (rows *Rows) Values() ([]interface{}, error) {
	out := make([]interface{}, len(rows.values))
	for i := range rows.values {
		v, err := rows.conn.columnValue(rows.fieldDescriptions[i], rows.resultFormats[i], rows.values[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Row is a convenience wrapper over Rows for queries expected to return a
// single row.
type Row struct {
	rows *Rows
	err  error
}

// Scan reads the single row into dest. It returns ErrNoRows when the query
// returned no rows.
func (r *Row) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	if !r.rows.Next() {
		return ErrNoRows
	}
	return r.rows.Scan(dest...)
}

// Query prepares sql in the unnamed statement slot and executes it, buffering
// the entire result set.
func (c *Conn) Query(ctx context.Context, sql string, args ...interface{}) (*Rows, error) {
	ps, err := c.Prepare(ctx, "", sql)
	if err != nil {
		return nil, err
	}
	return ps.Query(ctx, args...)
}

// QueryRow is like Query but for queries expected to return at most one row.
// Errors are deferred until Row.Scan.
func (c *Conn) QueryRow(ctx context.Context, sql string, args ...interface{}) *Row {
	rows, err := c.Query(ctx, sql, args...)
	return &Row{rows: rows, err: err}
}

// Query executes the prepared statement, buffering the entire result set.
func (ps *PreparedStatement) Query(ctx context.Context, args ...interface{}) (*Rows, error) {
	return ps.execute(ctx, args)
}

// QueryRow is like Query but for queries expected to return at most one row.
func (ps *PreparedStatement) QueryRow(ctx context.Context, args ...interface{}) *Row {
	rows, err := ps.execute(ctx, args)
	return &Row{rows: rows, err: err}
}

// Exec executes the prepared statement and discards any result rows.
func (ps *PreparedStatement) Exec(ctx context.Context, args ...interface{}) (pgconn.CommandTag, error) {
	rows, err := ps.execute(ctx, args)
	if err != nil {
		return "", err
	}
	return rows.commandTag, nil
}

func (ps *PreparedStatement) execute(ctx context.Context, args []interface{}) (*Rows, error) {
	c := ps.conn

	if err := c.guard(ps.SQL); err != nil {
		return nil, err
	}
	if ps.invalidated() {
		return nil, ErrInvalidatedPortal
	}

	paramValues, paramFormats, err := c.encodeParams(ps, args)
	if err != nil {
		return nil, err
	}
	resultFormats := c.resultFormats(ps.FieldDescriptions)

	startTime := time.Now()

	c.pgConn.Send(&pgproto.Bind{
		PreparedStatement:    ps.Name,
		ParameterFormatCodes: paramFormats,
		Parameters:           paramValues,
		ResultFormatCodes:    resultFormats,
	})
	c.pgConn.Send(&pgproto.Execute{})
	c.pgConn.Send(&pgproto.Sync{})
	if err := c.pgConn.Flush(ctx); err != nil {
		return nil, err
	}

	rows := &Rows{conn: c, fieldDescriptions: ps.FieldDescriptions, resultFormats: resultFormats}
	var pgErr, shapeErr error

	for {
		msg, err := c.pgConn.ReceiveMessage(ctx)
		if err != nil {
			return nil, err
		}

		switch msg := msg.(type) {
		case *pgproto.BindComplete:
		case *pgproto.DataRow:
			if pgErr != nil || shapeErr != nil {
				continue
			}
			if len(msg.Values) != len(rows.fieldDescriptions) {
				shapeErr = &RowShapeError{ExpectedColumns: len(rows.fieldDescriptions), ActualColumns: len(msg.Values)}
				continue
			}
			rows.rows = append(rows.rows, copyRow(msg.Values))
		case *pgproto.CommandComplete:
			rows.commandTag = pgconn.CommandTag(msg.CommandTag)
		case *pgproto.EmptyQueryResponse:
		case *pgproto.ErrorResponse:
			pgErr = pgconn.ErrorResponseToPgError(msg)
		case *pgproto.ReadyForQuery:
			if pgErr != nil {
				if c.shouldLog(LogLevelError) {
					c.log(ctx, LogLevelError, "Query", map[string]interface{}{"sql": ps.SQL, "args": logQueryArgs(args), "err": pgErr})
				}
				return nil, pgErr
			}
			if shapeErr != nil {
				return nil, shapeErr
			}
			if c.shouldLog(LogLevelInfo) {
				c.log(ctx, LogLevelInfo, "Query", map[string]interface{}{
					"sql": ps.SQL, "args": logQueryArgs(args),
					"time": time.Since(startTime), "rowCount": len(rows.rows),
				})
			}
			return rows, nil
		}
	}
}

// encodeParams converts args to wire format per the statement's described
// parameter OIDs. Argument count is checked before any encoding so a
// mismatch sends nothing.
func (c *Conn) encodeParams(ps *PreparedStatement, args []interface{}) ([][]byte, []int16, error) {
	if len(args) != len(ps.ParameterOIDs) {
		return nil, nil, &ParameterCountError{Expected: len(ps.ParameterOIDs), Actual: len(args)}
	}

	paramValues := make([][]byte, len(args))
	paramFormats := make([]int16, len(args))

	for i, arg := range args {
		oid := ps.ParameterOIDs[i]

		dt, ok := c.connInfo.DataTypeForOID(oid)
		if !ok {
			buf, err := encodeUnknownParam(c.connInfo, oid, arg)
			if err != nil {
				return nil, nil, err
			}
			paramValues[i] = buf
			paramFormats[i] = pgtype.TextFormatCode
			continue
		}

		value := pgtype.NewValueForDataType(dt)
		if err := value.Set(arg); err != nil {
			return nil, nil, errors.Wrapf(err, "cannot encode $%d", i+1)
		}

		var buf []byte
		var err error
		switch dt.FormatCode {
		case pgtype.BinaryFormatCode:
			buf, err = value.(pgtype.BinaryEncoder).EncodeBinary(c.connInfo, nil)
		default:
			buf, err = value.(pgtype.TextEncoder).EncodeText(c.connInfo, nil)
		}
		if err != nil {
			return nil, nil, errors.Wrapf(err, "cannot encode $%d", i+1)
		}

		paramValues[i] = buf
		paramFormats[i] = dt.FormatCode
	}

	return paramValues, paramFormats, nil
}

// Unknown parameter types are sent as text. Strings and raw byte slices pass
// through so queries against unregistered catalog types still work.
func encodeUnknownParam(ci *pgtype.ConnInfo, oid pgtype.OID, arg interface{}) ([]byte, error) {
	switch arg := arg.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(arg), nil
	case []byte:
		return arg, nil
	default:
		if te, ok := arg.(pgtype.TextEncoder); ok {
			return te.EncodeText(ci, nil)
		}
		return nil, &pgtype.UnsupportedTypeError{OID: oid}
	}
}

func (c *Conn) resultFormats(fields []pgproto.FieldDescription) []int16 {
	formats := make([]int16, len(fields))
	for i := range fields {
		formats[i] = c.connInfo.ResultFormatCodeForOID(pgtype.OID(fields[i].DataTypeOID))
	}
	return formats
}

func (c *Conn) decodeColumn(fd pgproto.FieldDescription, format int16, src []byte, dst interface{}) error {
	oid := pgtype.OID(fd.DataTypeOID)

	if dt, ok := c.connInfo.DataTypeForOID(oid); ok {
		value := pgtype.NewValueForDataType(dt)
		if err := decodeValue(c.connInfo, value, oid, format, src); err != nil {
			return err
		}
		return value.AssignTo(dst)
	}

	var gt pgtype.GenericText
	if err := gt.DecodeText(c.connInfo, src); err != nil {
		return err
	}
	return gt.AssignTo(dst)
}

func (c *Conn) columnValue(fd pgproto.FieldDescription, format int16, src []byte) (interface{}, error) {
	oid := pgtype.OID(fd.DataTypeOID)

	if dt, ok := c.connInfo.DataTypeForOID(oid); ok {
		value := pgtype.NewValueForDataType(dt)
		if err := decodeValue(c.connInfo, value, oid, format, src); err != nil {
			return nil, err
		}
		return value.Get(), nil
	}

	var gt pgtype.GenericText
	if err := gt.DecodeText(c.connInfo, src); err != nil {
		return nil, err
	}
	return gt.Get(), nil
}

func decodeValue(ci *pgtype.ConnInfo, value pgtype.Value, oid pgtype.OID, format int16, src []byte) error {
	var err error
	switch format {
	case pgtype.BinaryFormatCode:
		if d, ok := value.(pgtype.BinaryDecoder); ok {
			err = d.DecodeBinary(ci, src)
		} else {
			err = errors.New("binary format not supported")
		}
	default:
		if d, ok := value.(pgtype.TextDecoder); ok {
			err = d.DecodeText(ci, src)
		} else {
			err = errors.New("text format not supported")
		}
	}
	if err != nil {
		return &pgtype.DecodeError{OID: oid, Format: format, Len: len(src), Err: err}
	}
	return nil
}

// DataRow values alias the connection's receive buffer, which is reused by
// the next read. Buffered rows must own their bytes.
func copyRow(values [][]byte) [][]byte {
	row := make([][]byte, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		row[i] = make([]byte, len(v))
		copy(row[i], v)
	}
	return row
}
