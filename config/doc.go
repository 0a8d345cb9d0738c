// Package config loads the runtime configuration of processes built on this module and turns it into
// connections and options.
//
// Load starts from Default, overlays an optional YAML file and then environment variables, so an
// environment variable always wins. Environment variables are prefixed, e.g. ESAGG_POSTGRES_DSN.
//
// The factories open Postgres connections for each supported driver (pgx pool, database/sql with
// lib/pq, sqlx), build go-redis options and a slog.Logger, and translate the snapshot and retry
// settings into repository and command bus options.
package config
