// Package userdb is the SQLite cache of GitHub users and repositories.
//
// Reads are observable: FindByLogin, FindRepo and FindContributors return a stream
// that emits the stored record (nil when absent) and then every change written
// through the same Store.
// Writes made to the database by other processes are not observed.
package userdb
