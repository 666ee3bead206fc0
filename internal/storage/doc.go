// Package storage provides the persistence layer of the relay.
//
// It currently supports:
//   - Scheduled SMS tasks (CRUD + due-query + run bookkeeping)
//   - The notification channel set (replaced atomically on save)
//   - An inbound message log feeding the dashboard counters
package storage
