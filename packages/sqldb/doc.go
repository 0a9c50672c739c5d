// Package sqldb runs stages that execute a SQL query and verify the
// returned rows. A single database handle per test is opened from the
// database_url setting and shared across stages.
package sqldb
