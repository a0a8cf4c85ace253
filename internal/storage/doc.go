// Package storage provides the persistence layer used by the bot.
//
// It exposes generic attribute-condition reads and writes over the named
// tables created at open time (users, offers, votings, vacations, shops).
// Every call runs as its own implicit transaction; there is no
// multi-statement transaction API, so read-modify-write callers must be
// written to tolerate a crash between calls.
package storage
