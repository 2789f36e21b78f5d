package pgsql

import (
	"context"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"

	"github.com/pgkit/pgsql/pgconn"
	"github.com/pgkit/pgsql/pgtype"
)

// ConnConfig contains all the options used to establish a connection. It
// must be created by ParseConfig and then it can be modified.
type ConnConfig struct {
	pgconn.Config

	Logger   Logger
	LogLevel LogLevel

	// DefaultChunkSize is the row limit used per Execute by Chunks and
	// LoadChunks when none is given. Defaults to 256.
	DefaultChunkSize int32

	connString           string
	createdByParseConfig bool // Used to enforce created by ParseConfig rule.
}

// Copy returns a deep copy of the config that is safe to use and modify.
// The only exception is the TLSConfig field: according to the tls.Config
// docs it must not be modified after it has been used.
func (cc *ConnConfig) Copy() *ConnConfig {
	newConfig := new(ConnConfig)
	*newConfig = *cc
	newConfig.Config = *cc.Config.Copy()
	return newConfig
}

// ConnString returns the original connection string used to connect to the
// PostgreSQL server.
func (cc *ConnConfig) ConnString() string { return cc.connString }

// Conn is a PostgreSQL connection handle. It is not safe for concurrent
// usage. Use a connection pool to manage access from multiple goroutines.
type Conn struct {
	pgConn   *pgconn.PgConn
	config   *ConnConfig
	connInfo *pgtype.ConnInfo

	logger   Logger
	logLevel LogLevel

	preparedStatements map[string]*PreparedStatement
	unnamedStmtGen     uint64  // bumped each time the unnamed statement slot is reused
	activePortal       *Chunks // open streaming portal, if any

	txDepth int

	closed bool
}

// Connect establishes a connection with a PostgreSQL server with a
// connection string. See pgconn.Connect for details.
func Connect(ctx context.Context, connString string) (*Conn, error) {
	connConfig, err := ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	return connect(ctx, connConfig)
}

// ConnectConfig establishes a connection with a PostgreSQL server with a
// configuration struct. connConfig must have been created by ParseConfig.
func ConnectConfig(ctx context.Context, connConfig *ConnConfig) (*Conn, error) {
	if !connConfig.createdByParseConfig {
		panic("config must be created by ParseConfig")
	}
	return connect(ctx, connConfig)
}

// ParseConfig creates a ConnConfig from a connection string. ParseConfig
// handles all options that pgconn.ParseConfig does.
func ParseConfig(connString string) (*ConnConfig, error) {
	config, err := pgconn.ParseConfig(connString)
	if err != nil {
		return nil, err
	}

	connConfig := &ConnConfig{
		Config:               *config,
		LogLevel:             LogLevelInfo,
		DefaultChunkSize:     256,
		connString:           connString,
		createdByParseConfig: true,
	}

	return connConfig, nil
}

func connect(ctx context.Context, config *ConnConfig) (c *Conn, err error) {
	c = &Conn{
		config:             config,
		connInfo:           pgtype.NewConnInfo(),
		logger:             config.Logger,
		logLevel:           config.LogLevel,
		preparedStatements: make(map[string]*PreparedStatement),
	}

	if c.shouldLog(LogLevelInfo) {
		c.log(ctx, LogLevelInfo, "dialing server", map[string]interface{}{"host": config.Host})
	}

	c.pgConn, err = pgconn.ConnectConfig(ctx, &config.Config)
	if err != nil {
		if c.shouldLog(LogLevelError) {
			c.log(ctx, LogLevelError, "connect failed", map[string]interface{}{"err": err})
		}
		return nil, err
	}

	return c, nil
}

// Close closes a connection. It is safe to call Close on an already closed
// connection.
func (c *Conn) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true

	err := c.pgConn.Close(ctx)
	if c.shouldLog(LogLevelInfo) {
		c.log(ctx, LogLevelInfo, "closed connection", nil)
	}
	return err
}

// IsClosed reports if the connection has been closed.
func (c *Conn) IsClosed() bool {
	return c.closed || c.pgConn.IsClosed()
}

// PgConn returns the underlying *pgconn.PgConn.
func (c *Conn) PgConn() *pgconn.PgConn { return c.pgConn }

// ConnInfo returns the connection's type registry. It may be extended with
// RegisterDataType or LoadType.
func (c *Conn) ConnInfo() *pgtype.ConnInfo { return c.connInfo }

// Config returns a copy of config that was used to establish this
// connection.
func (c *Conn) Config() *ConnConfig { return c.config.Copy() }

// ServerVersion returns the server_version parameter status parsed as a
// semantic version. Trailing build information such as
// "13.3 (Debian 13.3-1)" is ignored.
func (c *Conn) ServerVersion() (*semver.Version, error) {
	v := c.pgConn.ParameterStatus("server_version")
	if v == "" {
		return nil, errors.New("server did not report server_version")
	}

	if i := strings.IndexByte(v, ' '); i >= 0 {
		v = v[:i]
	}

	return semver.NewVersion(v)
}

// Exec executes sql via the simple query protocol. sql can contain multiple
// statements.
func (c *Conn) Exec(ctx context.Context, sql string) (pgconn.CommandTag, error) {
	if err := c.guard(sql); err != nil {
		return "", err
	}
	return c.exec(ctx, sql)
}

// exec skips the aborted-transaction guard. Used by the transaction manager
// for rollback statements.
func (c *Conn) exec(ctx context.Context, sql string) (pgconn.CommandTag, error) {
	commandTag, err := c.pgConn.Exec(ctx, sql)
	if err != nil {
		if c.shouldLog(LogLevelError) {
			c.log(ctx, LogLevelError, "Exec", map[string]interface{}{"sql": sql, "err": err})
		}
		return commandTag, err
	}

	if c.shouldLog(LogLevelInfo) {
		c.log(ctx, LogLevelInfo, "Exec", map[string]interface{}{"sql": sql, "commandTag": string(commandTag)})
	}
	return commandTag, nil
}

// guard refuses statements that cannot be sent on the connection in its
// current state: a streaming portal holds the single request pipeline, and
// while the server reports the transaction as failed only rollback may be
// issued.
func (c *Conn) guard(sql string) error {
	if c.IsClosed() {
		return errors.New("conn closed")
	}
	if c.activePortal != nil {
		return ErrConnBusy
	}
	if c.pgConn.TxStatus() == 'E' && !isRollbackSQL(sql) {
		return ErrTxAborted
	}
	return nil
}

func isRollbackSQL(sql string) bool {
	s := strings.ToLower(strings.TrimSpace(sql))
	return strings.HasPrefix(s, "rollback") || strings.HasPrefix(s, "abort")
}

func (c *Conn) shouldLog(lvl LogLevel) bool {
	return c.logger != nil && c.logLevel >= lvl
}

func (c *Conn) log(ctx context.Context, lvl LogLevel, msg string, data map[string]interface{}) {
	if data == nil {
		data = map[string]interface{}{}
	}
	if c.pgConn != nil && c.pgConn.PID() != 0 {
		data["pid"] = c.pgConn.PID()
	}
	c.logger.Log(ctx, lvl, msg, data)
}

// LoadType inspects the database for typeName and produces a DataType
// suitable for registration. typeName must be the name of a type where the
// underlying types, such as array elements or composite attributes, are
// already registered.
//
// The catalog lookup uses the connection's own request pipeline so it must
// not be called while a streaming portal is open.
func (c *Conn) LoadType(ctx context.Context, typeName string) (*pgtype.DataType, error) {
	if c.activePortal != nil {
		return nil, ErrConnBusy
	}

	var oid, typbasetype, typelem, typrelid int64
	var typtype string

	row := c.QueryRow(ctx,
		"select t.oid::int8, t.typtype::text, t.typbasetype::int8, t.typelem::int8, t.typrelid::int8 from pg_type t where t.typname = $1",
		typeName)
	if err := row.Scan(&oid, &typtype, &typbasetype, &typelem, &typrelid); err != nil {
		if err == ErrNoRows {
			return nil, errors.Errorf("unknown type %q", typeName)
		}
		return nil, err
	}

	var value pgtype.Value

	switch typtype {
	case "b": // base
		if typelem != 0 {
			elemDT, ok := c.connInfo.DataTypeForOID(pgtype.OID(typelem))
			if !ok {
				return nil, errors.Errorf("array type %q has unregistered element oid %d", typeName, typelem)
			}
			value = pgtype.NewArrayType(typeName, pgtype.OID(typelem), func() pgtype.Value {
				return pgtype.NewValueForDataType(elemDT)
			})
		} else {
			value = &pgtype.GenericText{}
		}
	case "e": // enum
		value = &pgtype.GenericText{}
	case "d": // domain
		baseDT, ok := c.connInfo.DataTypeForOID(pgtype.OID(typbasetype))
		if !ok {
			return nil, errors.Errorf("domain %q has unregistered base type oid %d", typeName, typbasetype)
		}
		value = pgtype.NewValueForDataType(baseDT)
	case "c": // composite
		fields, err := c.loadCompositeFields(ctx, typrelid)
		if err != nil {
			return nil, err
		}
		value, err = pgtype.NewCompositeType(typeName, fields, c.connInfo)
		if err != nil {
			return nil, err
		}
	default:
		value = &pgtype.GenericText{}
	}

	c.connInfo.RegisterDataType(pgtype.DataType{Value: value, Name: typeName, OID: pgtype.OID(oid)})
	dt, _ := c.connInfo.DataTypeForOID(pgtype.OID(oid))
	return dt, nil
}

func (c *Conn) loadCompositeFields(ctx context.Context, relid int64) ([]pgtype.CompositeTypeField, error) {
	rows, err := c.Query(ctx,
		"select attname::text, atttypid::int8 from pg_attribute where attrelid = $1::int8::oid and attnum > 0 and not attisdropped order by attnum",
		strconv.FormatInt(relid, 10))
	if err != nil {
		return nil, err
	}

	var fields []pgtype.CompositeTypeField
	for rows.Next() {
		var name string
		var atttypid int64
		if err := rows.Scan(&name, &atttypid); err != nil {
			return nil, err
		}
		fields = append(fields, pgtype.CompositeTypeField{Name: name, OID: pgtype.OID(atttypid)})
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return fields, nil
}
