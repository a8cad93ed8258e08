// Package sqldialect renders statements for Postgres, MySQL and SQLite.
package sqldialect
