// Package tests has helpers shared by the package test suites.
package tests

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

var (
	keepAliveMu  sync.Mutex
	keepAliveDBs []*sql.DB
)

// MirrorDBURL returns a connection string for a throwaway in-memory mirror
// database. Every call names a fresh database, so parallel tests never
// share state.
func MirrorDBURL() string {
	url := fmt.Sprintf("file::%s:?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())

	// A shared-cache in-memory database is dropped when its last connection
	// closes; pin one connection for the life of the test process so the
	// database survives short-lived connections such as the migration one.
	keepAlive, err := sql.Open("sqlite3", url)
	if err != nil {
		panic(fmt.Sprintf("opening keep-alive connection: %s", err))
	}
	if err := keepAlive.Ping(); err != nil {
		panic(fmt.Sprintf("pinging keep-alive connection: %s", err))
	}
	keepAliveMu.Lock()
	keepAliveDBs = append(keepAliveDBs, keepAlive)
	keepAliveMu.Unlock()

	return url
}
