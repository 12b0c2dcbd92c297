/*
Package migration evolves an existing hub schema in place: quota columns
on the user and organization tables, the sshkey credential table with its
indexes, and a one-time backfill of legacy storage quotas. Every step is
idempotent, so a run may be repeated after any partial failure without
destroying data.

The two supported backends differ structurally. PostgreSQL carries
declarative IF NOT EXISTS guards for column and index DDL, so the guarded
strategy issues additive statements and lets the engine skip what already
exists. SQLite has no such guard for ADD COLUMN, and a duplicate-column
error there aborts the statement, so the unguarded strategy inspects the
live catalog before every addition.

The Runner sequences the steps over one shared connection selected by an
explicit DatabaseType, and reports progress through a logging.Reporter.
There is no wrapping transaction: each statement commits on its own, and
a fatal failure leaves the completed steps intact.
*/
package migration
