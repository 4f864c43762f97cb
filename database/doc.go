// Package database opens named Bun connections, loads model definitions onto
// them, runs the association pass, and optionally creates the resulting
// tables and foreign keys.
package database
