// Package store groups the UserResolver implementations shipped with goSession.
//
// Subpackages:
//
//   - memory: process-local map, for tests, demos and load generation.
//   - redis: hashes plus identifier index keys in Redis.
//   - postgres: a users table queried through pgx, with embedded migrations.
//
// Every resolver matches a credential identifier against username and email
// case-insensitively, and reports absence as found == false.
package store
