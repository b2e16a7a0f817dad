// Package db provides the embedded development schema used by seed-db and
// the repository integration tests.
package db

import _ "embed"

// Schema contains the DDL statements for the tables the tools operate on.
//
//go:embed migrations/001_schema.sql
var Schema string
