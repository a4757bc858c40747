package index

import (
	"log/slog"

	"github.com/starford/robotdb/internal/storage"
)

// Sync walks the store and brings the index up to date:
//   - new/changed documents are decoded and upserted
//   - documents removed from the store are deleted from the index
//
// It returns the number of documents indexed and removed.
func Sync(db *DB, store storage.Provider, logger *slog.Logger) (int, int, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	metas, err := store.List()
	if err != nil {
		return 0, 0, err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return 0, 0, err
	}

	indexed, removed := 0, 0
	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Name] = struct{}{}

		if checksums[m.Name] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Name)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("document", m.Name), slog.String("error", err.Error()))
			continue
		}
		rec, err := storage.Decode(data)
		if err != nil {
			logger.Warn("sync: decode failed", slog.String("document", m.Name), slog.String("error", err.Error()))
			continue
		}
		if err := db.UpsertAsset(AssetRowFor(rec, m.Name, m.Checksum, m.UpdatedAt), rec); err != nil {
			logger.Warn("sync: index failed", slog.String("document", m.Name), slog.String("error", err.Error()))
			continue
		}
		indexed++
		logger.Debug("sync: indexed", slog.String("document", m.Name), slog.String("identity", rec.Identity()))
	}

	// Remove stale entries.
	for name := range checksums {
		if _, ok := disk[name]; ok {
			continue
		}
		if err := db.DeleteDocument(name); err != nil {
			logger.Warn("sync: delete failed", slog.String("document", name), slog.String("error", err.Error()))
			continue
		}
		removed++
		logger.Debug("sync: removed stale", slog.String("document", name))
	}

	return indexed, removed, nil
}
