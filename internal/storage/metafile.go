package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"
	_ "github.com/tursodatabase/go-libsql"
	"github.com/uptrace/bun"

	"homefs/internal/util"
)

// lockRetryDelay is how often a blocked writer re-tries the file lock.
const lockRetryDelay = 25 * time.Millisecond

// MetaFile is the SQLite-backed store for favorites, shares, trash records
// and small config values.
//
// Reads go straight to the database. Every read-modify-write goes through
// WithWriteLock, which serializes writers inside this process (mutex) and
// across processes sharing the file (advisory flock on <path>.lock).
type MetaFile struct {
	path  string
	db    *sql.DB
	bunDB *BunDB

	mu   sync.Mutex
	lock *flock.Flock
}

// CreateMeta creates a new meta file
func CreateMeta(path string) (*MetaFile, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("file already exists: %s", path)
	}

	db, err := sql.Open("libsql", BuildDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	// Must be explicit: libsql ignores DSN-based _pragma=value parameters.
	if err := applyPragmas(db); err != nil {
		db.Close()
		os.Remove(path)
		return nil, err
	}

	if err := execStatements(db, metaFileSchema); err != nil {
		db.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	if err := execStatements(db, initMetaFile, SchemaVersion, MetaFileType); err != nil {
		db.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to initialize meta file: %w", err)
	}

	log.Debugf("[MetaFile] created %s", path)
	return newMetaFile(path, db), nil
}

// OpenMeta opens an existing meta file
func OpenMeta(path string) (*MetaFile, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("file not found: %s", path)
	}

	db, err := sql.Open("libsql", BuildDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	bunDB := NewBunDB(db)
	fileType, err := bunDB.GetSchemaInfo(context.Background(), "type")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read schema info: %w", err)
	}
	if fileType != MetaFileType {
		db.Close()
		return nil, fmt.Errorf("not a meta file (type=%s)", fileType)
	}

	// Schema statements are idempotent; this picks up tables added later.
	if err := execStatements(db, metaFileSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return newMetaFile(path, db), nil
}

// OpenOrCreateMeta opens an existing meta file or creates a new one
func OpenOrCreateMeta(path string) (*MetaFile, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return CreateMeta(path)
	}
	return OpenMeta(path)
}

func newMetaFile(path string, db *sql.DB) *MetaFile {
	return &MetaFile{
		path:  path,
		db:    db,
		bunDB: NewBunDB(db),
		lock:  flock.New(path + ".lock"),
	}
}

// Close closes the database connection
func (mf *MetaFile) Close() error {
	if mf.db != nil {
		return mf.db.Close()
	}
	return nil
}

// Path returns the file path
func (mf *MetaFile) Path() string {
	return mf.path
}

// BunDB returns the Bun database wrapper.
func (mf *MetaFile) BunDB() *BunDB {
	return mf.bunDB
}

// WithWriteLock runs fn with exclusive write access to the meta file.
// fn receives a Tx bound to a single SQLite transaction that commits when
// fn returns nil and rolls back otherwise. fn may be re-run when SQLite
// reports the database as busy, so it must not have side effects outside
// the transaction.
func (mf *MetaFile) WithWriteLock(ctx context.Context, fn func(tx *Tx) error) error {
	mf.mu.Lock()
	defer mf.mu.Unlock()

	locked, err := mf.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to acquire meta file lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("failed to acquire meta file lock: %s", mf.lock.Path())
	}
	defer func() {
		if err := mf.lock.Unlock(); err != nil {
			log.Warnf("[MetaFile] failed to release lock: %v", err)
		}
	}()

	return util.Retry(ctx, func() error {
		return mf.bunDB.RunInTx(ctx, nil, func(ctx context.Context, btx bun.Tx) error {
			return fn(&Tx{ctx: ctx, db: mf.bunDB, idb: btx})
		})
	}, util.DatabaseRetryOptions(ctx)...)
}

// --- Unlocked reads ---

func (mf *MetaFile) reader(ctx context.Context) *Tx {
	return &Tx{ctx: ctx, db: mf.bunDB, idb: mf.bunDB.DB}
}

// Favorites returns stored favorite paths in insertion order.
func (mf *MetaFile) Favorites(ctx context.Context) ([]string, error) {
	return mf.reader(ctx).Favorites()
}

// Shares returns all stored shares.
func (mf *MetaFile) Shares(ctx context.Context) ([]Share, error) {
	return mf.reader(ctx).Shares()
}

// ShareByPath returns the share exporting path, nil if none.
func (mf *MetaFile) ShareByPath(ctx context.Context, path string) (*Share, error) {
	return mf.reader(ctx).ShareByPath(path)
}

// TrashRecord returns the record for a trashed entry name, nil if none.
func (mf *MetaFile) TrashRecord(ctx context.Context, trashName string) (*TrashRecord, error) {
	return mf.reader(ctx).TrashRecord(trashName)
}

// TrashRecords returns every stored trash record.
func (mf *MetaFile) TrashRecords(ctx context.Context) ([]TrashRecord, error) {
	return mf.reader(ctx).TrashRecords()
}

// Config returns a config value, "" when unset.
func (mf *MetaFile) Config(ctx context.Context, key string) (string, error) {
	return mf.reader(ctx).Config(key)
}

// Tx exposes meta file operations bound to one database handle.
// Inside WithWriteLock it is the locked transaction.
type Tx struct {
	ctx context.Context
	db  *BunDB
	idb bun.IDB
}

// Config returns a config value, "" when unset.
func (tx *Tx) Config(key string) (string, error) {
	return tx.db.GetConfigValueWith(tx.idb, tx.ctx, key)
}

// SetConfig stores a config value.
func (tx *Tx) SetConfig(key, value string) error {
	return tx.db.SetConfigValueWith(tx.idb, tx.ctx, key, value)
}

// Favorites returns favorite paths in insertion order.
func (tx *Tx) Favorites() ([]string, error) {
	models, err := tx.db.ListFavoritesWith(tx.idb, tx.ctx)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(models))
	for i, m := range models {
		paths[i] = m.Path
	}
	return paths, nil
}

// AddFavorite appends path. Returns false if it was already a favorite.
func (tx *Tx) AddFavorite(path string) (bool, error) {
	existing, err := tx.db.GetFavoriteWith(tx.idb, tx.ctx, path)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}
	if err := tx.db.InsertFavoriteWith(tx.idb, tx.ctx, path); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteFavorite removes path. Returns false if it was not a favorite.
func (tx *Tx) DeleteFavorite(path string) (bool, error) {
	rows, err := tx.db.DeleteFavoriteWith(tx.idb, tx.ctx, path)
	return rows > 0, err
}

// RepointFavorite moves a favorite from oldPath to newPath, keeping its
// position. When newPath is already a favorite the old entry is dropped.
func (tx *Tx) RepointFavorite(oldPath, newPath string) (bool, error) {
	existing, err := tx.db.GetFavoriteWith(tx.idb, tx.ctx, newPath)
	if err != nil {
		return false, err
	}
	if existing != nil {
		rows, err := tx.db.DeleteFavoriteWith(tx.idb, tx.ctx, oldPath)
		return rows > 0, err
	}
	rows, err := tx.db.UpdateFavoritePathWith(tx.idb, tx.ctx, oldPath, newPath)
	return rows > 0, err
}

// Shares returns all shares.
func (tx *Tx) Shares() ([]Share, error) {
	models, err := tx.db.ListSharesWith(tx.idb, tx.ctx)
	if err != nil {
		return nil, err
	}
	shares := make([]Share, len(models))
	for i := range models {
		shares[i] = models[i].ToShare()
	}
	return shares, nil
}

// ShareByPath returns the share exporting path, nil if none.
func (tx *Tx) ShareByPath(path string) (*Share, error) {
	model, err := tx.db.GetShareByPathWith(tx.idb, tx.ctx, path)
	if err != nil || model == nil {
		return nil, err
	}
	share := model.ToShare()
	return &share, nil
}

// ShareNameExists reports whether a share already uses name.
func (tx *Tx) ShareNameExists(name string) (bool, error) {
	return tx.db.ShareNameExistsWith(tx.idb, tx.ctx, name)
}

// AddShare stores a new share.
func (tx *Tx) AddShare(name, path string) error {
	return tx.db.InsertShareWith(tx.idb, tx.ctx, name, path)
}

// DeleteShare removes the share exporting path. Returns false if none did.
func (tx *Tx) DeleteShare(path string) (bool, error) {
	rows, err := tx.db.DeleteShareWith(tx.idb, tx.ctx, path)
	return rows > 0, err
}

// RepointShare moves a share from oldPath to newPath, keeping its name.
// When newPath is already shared the old entry is dropped.
func (tx *Tx) RepointShare(oldPath, newPath string) (bool, error) {
	existing, err := tx.db.GetShareByPathWith(tx.idb, tx.ctx, newPath)
	if err != nil {
		return false, err
	}
	if existing != nil {
		rows, err := tx.db.DeleteShareWith(tx.idb, tx.ctx, oldPath)
		return rows > 0, err
	}
	rows, err := tx.db.UpdateSharePathWith(tx.idb, tx.ctx, oldPath, newPath)
	return rows > 0, err
}

// TrashRecord returns the record for a trashed entry name, nil if none.
func (tx *Tx) TrashRecord(trashName string) (*TrashRecord, error) {
	model, err := tx.db.GetTrashRecordWith(tx.idb, tx.ctx, trashName)
	if err != nil || model == nil {
		return nil, err
	}
	return model.ToTrashRecord(), nil
}

// TrashRecords returns every trash record.
func (tx *Tx) TrashRecords() ([]TrashRecord, error) {
	models, err := tx.db.ListTrashRecordsWith(tx.idb, tx.ctx)
	if err != nil {
		return nil, err
	}
	records := make([]TrashRecord, len(models))
	for i := range models {
		records[i] = *models[i].ToTrashRecord()
	}
	return records, nil
}

// PutTrashRecord stores where trashName came from.
func (tx *Tx) PutTrashRecord(trashName, originalPath string) error {
	return tx.db.UpsertTrashRecordWith(tx.idb, tx.ctx, trashName, originalPath)
}

// DeleteTrashRecord removes the record for trashName. Returns false if none existed.
func (tx *Tx) DeleteTrashRecord(trashName string) (bool, error) {
	rows, err := tx.db.DeleteTrashRecordWith(tx.idb, tx.ctx, trashName)
	return rows > 0, err
}
