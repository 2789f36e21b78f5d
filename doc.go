// Package pgsql is a PostgreSQL client built directly on the version 3 wire
// protocol.
//
// Establishing a connection:
//
//	conn, err := pgsql.Connect(context.Background(), os.Getenv("DATABASE_URL"))
//
// Statements are prepared and described before execution, so parameter and
// result types are always known:
//
//	ps, err := conn.Prepare(ctx, "active_users", "select id, name from users where active = $1")
//	rows, err := ps.Query(ctx, true)
//	for rows.Next() {
//		var id int64
//		var name string
//		err = rows.Scan(&id, &name)
//	}
//
// Query buffers the whole result set. For large results, Chunks streams the
// result through a suspended portal, fetching a bounded number of rows per
// round trip:
//
//	ck, err := ps.Chunks(ctx, 500)
//	for {
//		rows, err := ck.NextChunk(ctx)
//		if rows == nil || err != nil {
//			break
//		}
//		// ...
//	}
//
// LoadRows and LoadChunks pipeline many executions of one statement into a
// minimal number of round trips, validating every tuple before any are sent.
//
// Begin starts a transaction; nested Begin calls push savepoints onto a
// stack that must be unwound innermost first.
//
// Wire-level access is available through the pgconn and pgproto packages,
// and the type system through pgtype.
package pgsql
