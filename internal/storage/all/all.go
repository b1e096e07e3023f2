// Package all registers every storage backend. Import for side effects from
// binaries that select a backend at runtime.
package all

import (
	_ "gtdetl/internal/storage/mssql"
	_ "gtdetl/internal/storage/postgres"
	_ "gtdetl/internal/storage/sqlite"
)
