// Package adapters lets the PostgreSQL engine run the same SQL on a pgxpool.Pool, a *sql.DB
// opened with lib/pq or a *sqlx.DB. The engine only sees Conn.
package adapters
