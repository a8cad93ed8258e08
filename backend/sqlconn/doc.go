/*
Package sqlconn binds the engine to database/sql.

Postgres runs on lib/pq, MySQL on go-sql-driver/mysql and SQLite on
modernc.org/sqlite. A DB is a connection.Factory handing out dedicated pool
connections; a Ledger keeps migration versions in schema_migrations; a
Creator creates the database named by a DSN; TableBinder checks at
registration time that an entity's table exists.

Unique violations of every driver map to AlreadyExistsError.
*/
package sqlconn
