package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// BunDB wraps a Bun database instance for type-safe queries.
type BunDB struct {
	*bun.DB
}

// NewBunDB wraps an existing *sql.DB with Bun's type-safe query builder.
func NewBunDB(sqlDB *sql.DB) *BunDB {
	bunDB := bun.NewDB(sqlDB, sqlitedialect.New())
	return &BunDB{DB: bunDB}
}

// --- Schema Info Operations ---

// GetSchemaInfo retrieves a schema info value by key.
func (db *BunDB) GetSchemaInfo(ctx context.Context, key string) (string, error) {
	var info SchemaInfoModel
	err := db.NewSelect().
		Model(&info).
		Where("key = ?", key).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return info.Value, nil
}

// --- Config Operations ---

// GetConfigValueWith retrieves a config value by key, "" if unset.
func (db *BunDB) GetConfigValueWith(idb bun.IDB, ctx context.Context, key string) (string, error) {
	var config ConfigModel
	err := idb.NewSelect().
		Model(&config).
		Where("key = ?", key).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return config.Value, nil
}

// SetConfigValueWith sets a config value (upserts).
func (db *BunDB) SetConfigValueWith(idb bun.IDB, ctx context.Context, key, value string) error {
	_, err := idb.NewInsert().
		Model(&ConfigModel{Key: key, Value: value}).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Exec(ctx)
	return err
}

// --- Favorite Operations ---

// ListFavoritesWith returns favorites in insertion order.
func (db *BunDB) ListFavoritesWith(idb bun.IDB, ctx context.Context) ([]FavoriteModel, error) {
	var favorites []FavoriteModel
	err := idb.NewSelect().
		Model(&favorites).
		Order("position").
		Scan(ctx)
	return favorites, err
}

// GetFavoriteWith returns the favorite for path, nil if absent.
func (db *BunDB) GetFavoriteWith(idb bun.IDB, ctx context.Context, path string) (*FavoriteModel, error) {
	var favorite FavoriteModel
	err := idb.NewSelect().
		Model(&favorite).
		Where("path = ?", path).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &favorite, nil
}

// InsertFavoriteWith appends path after the last favorite.
func (db *BunDB) InsertFavoriteWith(idb bun.IDB, ctx context.Context, path string) error {
	var maxPos sql.NullInt64
	if err := idb.NewRaw(`SELECT MAX(position) FROM favorites`).Scan(ctx, &maxPos); err != nil {
		return err
	}
	position := int64(0)
	if maxPos.Valid {
		position = maxPos.Int64 + 1
	}
	_, err := idb.NewInsert().
		Model(&FavoriteModel{Path: path, Position: position, CreatedAt: time.Now().Unix()}).
		Exec(ctx)
	return err
}

// DeleteFavoriteWith removes the favorite for path.
func (db *BunDB) DeleteFavoriteWith(idb bun.IDB, ctx context.Context, path string) (int64, error) {
	result, err := idb.NewDelete().
		Model((*FavoriteModel)(nil)).
		Where("path = ?", path).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// UpdateFavoritePathWith repoints a favorite in place, keeping its position.
func (db *BunDB) UpdateFavoritePathWith(idb bun.IDB, ctx context.Context, oldPath, newPath string) (int64, error) {
	result, err := idb.NewUpdate().
		Model((*FavoriteModel)(nil)).
		Set("path = ?", newPath).
		Where("path = ?", oldPath).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// --- Share Operations ---

// ListSharesWith returns shares ordered by creation.
func (db *BunDB) ListSharesWith(idb bun.IDB, ctx context.Context) ([]ShareModel, error) {
	var shares []ShareModel
	err := idb.NewSelect().
		Model(&shares).
		Order("id").
		Scan(ctx)
	return shares, err
}

// GetShareByPathWith returns the share exporting path, nil if absent.
func (db *BunDB) GetShareByPathWith(idb bun.IDB, ctx context.Context, path string) (*ShareModel, error) {
	var share ShareModel
	err := idb.NewSelect().
		Model(&share).
		Where("path = ?", path).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &share, nil
}

// ShareNameExistsWith reports whether a share already uses name.
func (db *BunDB) ShareNameExistsWith(idb bun.IDB, ctx context.Context, name string) (bool, error) {
	return idb.NewSelect().
		Model((*ShareModel)(nil)).
		Where("name = ?", name).
		Exists(ctx)
}

// InsertShareWith inserts a new share.
func (db *BunDB) InsertShareWith(idb bun.IDB, ctx context.Context, name, path string) error {
	_, err := idb.NewInsert().
		Model(&ShareModel{Name: name, Path: path, CreatedAt: time.Now().Unix()}).
		Exec(ctx)
	return err
}

// DeleteShareWith removes the share exporting path.
func (db *BunDB) DeleteShareWith(idb bun.IDB, ctx context.Context, path string) (int64, error) {
	result, err := idb.NewDelete().
		Model((*ShareModel)(nil)).
		Where("path = ?", path).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// UpdateSharePathWith repoints a share in place, keeping its name.
func (db *BunDB) UpdateSharePathWith(idb bun.IDB, ctx context.Context, oldPath, newPath string) (int64, error) {
	result, err := idb.NewUpdate().
		Model((*ShareModel)(nil)).
		Set("path = ?", newPath).
		Where("path = ?", oldPath).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// --- Trash Record Operations ---

// GetTrashRecordWith returns the record for a trashed entry name, nil if absent.
func (db *BunDB) GetTrashRecordWith(idb bun.IDB, ctx context.Context, trashName string) (*TrashRecordModel, error) {
	var record TrashRecordModel
	err := idb.NewSelect().
		Model(&record).
		Where("trash_name = ?", trashName).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListTrashRecordsWith returns all trash records ordered by name.
func (db *BunDB) ListTrashRecordsWith(idb bun.IDB, ctx context.Context) ([]TrashRecordModel, error) {
	var records []TrashRecordModel
	err := idb.NewSelect().
		Model(&records).
		Order("trash_name").
		Scan(ctx)
	return records, err
}

// UpsertTrashRecordWith writes the record for trashName, replacing a stale one.
func (db *BunDB) UpsertTrashRecordWith(idb bun.IDB, ctx context.Context, trashName, originalPath string) error {
	_, err := idb.NewInsert().
		Model(&TrashRecordModel{
			ID:           uuid.NewString(),
			TrashName:    trashName,
			OriginalPath: originalPath,
			CreatedAt:    time.Now().Unix(),
		}).
		On("CONFLICT (trash_name) DO UPDATE").
		Set("original_path = EXCLUDED.original_path").
		Set("created_at = EXCLUDED.created_at").
		Exec(ctx)
	return err
}

// DeleteTrashRecordWith removes the record for trashName.
func (db *BunDB) DeleteTrashRecordWith(idb bun.IDB, ctx context.Context, trashName string) (int64, error) {
	result, err := idb.NewDelete().
		Model((*TrashRecordModel)(nil)).
		Where("trash_name = ?", trashName).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
