package pgsql

import (
	"context"

	"github.com/pgkit/pgsql/pgconn"
	"github.com/pgkit/pgsql/pgproto"
	"github.com/pgkit/pgsql/pgtype"
)

// PreparedStatement is a server-side parsed statement. It is bound to the
// connection that prepared it.
type PreparedStatement struct {
	Name              string
	SQL               string
	ParameterOIDs     []pgtype.OID
	FieldDescriptions []pgproto.FieldDescription

	conn *Conn
	gen  uint64 // unnamed slot generation at parse time, zero for named statements
}

// Prepare creates a prepared statement with name and sql. sql can contain
// placeholders $1, $2, etc. for bound parameters. The statement is described
// so parameter OIDs and result columns are known before the first execution.
//
// name of "" uses the server's unnamed statement slot. The unnamed slot is
// reused by the next Prepare with an empty name, which invalidates any portal
// still reading from the old statement.
//
// Prepare is idempotent: preparing the same name and sql again returns the
// cached statement without a server round trip.
func (c *Conn) Prepare(ctx context.Context, name, sql string) (*PreparedStatement, error) {
	if name != "" {
		if ps, ok := c.preparedStatements[name]; ok && ps.SQL == sql {
			return ps, nil
		}
	}

	if err := c.guard(sql); err != nil {
		return nil, err
	}

	if c.shouldLog(LogLevelDebug) {
		c.log(ctx, LogLevelDebug, "Prepare", map[string]interface{}{"name": name, "sql": sql})
	}

	ps, err := c.prepare(ctx, name, sql)
	if err != nil {
		if c.shouldLog(LogLevelError) {
			c.log(ctx, LogLevelError, "Prepare", map[string]interface{}{"name": name, "sql": sql, "err": err})
		}
		return nil, err
	}

	if name != "" {
		c.preparedStatements[name] = ps
	} else {
		c.unnamedStmtGen++
		ps.gen = c.unnamedStmtGen
	}

	return ps, nil
}

func (c *Conn) prepare(ctx context.Context, name, sql string) (*PreparedStatement, error) {
	c.pgConn.Send(&pgproto.Parse{Name: name, Query: sql})
	c.pgConn.Send(&pgproto.Describe{ObjectType: 'S', Name: name})
	c.pgConn.Send(&pgproto.Sync{})
	if err := c.pgConn.Flush(ctx); err != nil {
		return nil, err
	}

	ps := &PreparedStatement{Name: name, SQL: sql, conn: c}
	var pgErr error

	for {
		msg, err := c.pgConn.ReceiveMessage(ctx)
		if err != nil {
			return nil, err
		}

		switch msg := msg.(type) {
		case *pgproto.ParseComplete:
		case *pgproto.ParameterDescription:
			ps.ParameterOIDs = make([]pgtype.OID, len(msg.ParameterOIDs))
			for i, oid := range msg.ParameterOIDs {
				ps.ParameterOIDs[i] = pgtype.OID(oid)
			}
		case *pgproto.RowDescription:
			ps.FieldDescriptions = make([]pgproto.FieldDescription, len(msg.Fields))
			copy(ps.FieldDescriptions, msg.Fields)
		case *pgproto.NoData:
		case *pgproto.ErrorResponse:
			pgErr = pgconn.ErrorResponseToPgError(msg)
		case *pgproto.ReadyForQuery:
			if pgErr != nil {
				return nil, pgErr
			}
			return ps, nil
		}
	}
}

// Deallocate releases a named prepared statement on the server and removes it
// from the connection's cache.
func (c *Conn) Deallocate(ctx context.Context, name string) error {
	if err := c.guard(""); err != nil {
		return err
	}

	delete(c.preparedStatements, name)

	c.pgConn.Send(&pgproto.Close{ObjectType: 'S', Name: name})
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
		case *pgproto.CloseComplete:
		case *pgproto.ErrorResponse:
			pgErr = pgconn.ErrorResponseToPgError(msg)
		case *pgproto.ReadyForQuery:
			return pgErr
		}
	}
}

// invalidated reports whether the statement's unnamed slot was reused by a
// later Prepare.
func (ps *PreparedStatement) invalidated() bool {
	return ps.Name == "" && ps.gen != ps.conn.unnamedStmtGen
}
