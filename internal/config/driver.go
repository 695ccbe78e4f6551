package config

import "git.home.luguber.info/inful/eventrelay/internal/normalization"

// StoreDriver enumerates supported outbox backing stores.
type StoreDriver string

const (
	StoreDriverSQLite   StoreDriver = "sqlite"
	StoreDriverPostgres StoreDriver = "postgres"
)

var storeDriverNormalizer = normalization.NewNormalizer(map[string]StoreDriver{
	"sqlite":   StoreDriverSQLite,
	"postgres": StoreDriverPostgres,
}, StoreDriverSQLite)

// NormalizeStoreDriver canonicalizes user input, defaulting to sqlite.
func NormalizeStoreDriver(raw string) StoreDriver {
	return storeDriverNormalizer.Normalize(raw)
}
