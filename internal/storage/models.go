// Copyright 2024 homefs Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"time"

	"github.com/uptrace/bun"
)

// Bun ORM models for the homefs meta file tables.

// SchemaInfoModel represents the schema_info table
type SchemaInfoModel struct {
	bun.BaseModel `bun:"table:schema_info"`

	Key   string `bun:"key,pk"`
	Value string `bun:"value,notnull"`
}

// ConfigModel represents the config table
type ConfigModel struct {
	bun.BaseModel `bun:"table:config"`

	Key   string `bun:"key,pk"`
	Value string `bun:"value,notnull"`
}

// FavoriteModel represents the favorites table
type FavoriteModel struct {
	bun.BaseModel `bun:"table:favorites"`

	ID        int64  `bun:"id,pk,autoincrement"`
	Path      string `bun:"path,notnull,unique"`
	Position  int64  `bun:"position,notnull"`
	CreatedAt int64  `bun:"created_at,notnull"` // Unix timestamp
}

// ShareModel represents the shares table
type ShareModel struct {
	bun.BaseModel `bun:"table:shares"`

	ID        int64  `bun:"id,pk,autoincrement"`
	Name      string `bun:"name,notnull,unique"`
	Path      string `bun:"path,notnull,unique"`
	CreatedAt int64  `bun:"created_at,notnull"` // Unix timestamp
}

// ToShare converts a ShareModel to a Share
func (m *ShareModel) ToShare() Share {
	return Share{Name: m.Name, Path: m.Path}
}

// TrashRecordModel represents the trash_records table
type TrashRecordModel struct {
	bun.BaseModel `bun:"table:trash_records"`

	ID           string `bun:"id,pk"`
	TrashName    string `bun:"trash_name,notnull,unique"`
	OriginalPath string `bun:"original_path,notnull"`
	CreatedAt    int64  `bun:"created_at,notnull"` // Unix timestamp
}

// ToTrashRecord converts a TrashRecordModel to a TrashRecord
func (m *TrashRecordModel) ToTrashRecord() *TrashRecord {
	return &TrashRecord{
		TrashName:    m.TrashName,
		OriginalPath: m.OriginalPath,
		CreatedAt:    time.Unix(m.CreatedAt, 0),
	}
}

// Share is a named export of a directory, addressed by virtual path.
type Share struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// TrashRecord remembers where a trashed entry came from.
type TrashRecord struct {
	TrashName    string    `json:"trashName"`
	OriginalPath string    `json:"path"`
	CreatedAt    time.Time `json:"createdAt"`
}
