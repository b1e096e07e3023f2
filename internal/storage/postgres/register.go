package postgres

import "gtdetl/internal/storage"

func init() {
	// registers the backend factory
	storage.Register("postgres", New)
}
