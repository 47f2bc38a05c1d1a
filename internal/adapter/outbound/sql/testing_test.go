package sql

import (
	"strings"
	"testing"
)

// newTestDB opens a private in-memory sqlite database scoped to the calling
// test's name, so parallel tests never share a schema instance.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := "file:" + name + "?mode=memory&cache=shared"

	db, err := Open(dsn, 1)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
