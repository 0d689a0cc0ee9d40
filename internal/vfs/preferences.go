package vfs

import (
	"context"
	"slices"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"homefs/internal/common"
	"homefs/internal/storage"
)

// viewPreferencesKey is the meta file config key holding ViewPreferences.
const viewPreferencesKey = "view_preferences"

var (
	viewModes  = []string{"icons", "list"}
	sortFields = []string{"name", "type", "modified", "size"}
	sortOrders = []string{"ascending", "descending"}
)

// ViewPreferences is how a file browser presents directory listings.
type ViewPreferences struct {
	View      string `json:"view" yaml:"view"`
	SortBy    string `json:"sortBy" yaml:"sort_by"`
	SortOrder string `json:"sortOrder" yaml:"sort_order"`
}

// DefaultViewPreferences apply until preferences are first updated.
var DefaultViewPreferences = ViewPreferences{View: "list", SortBy: "name", SortOrder: "ascending"}

// Validate rejects unknown values. Empty fields are allowed so a partial
// update can be validated on its own.
func (p ViewPreferences) Validate() error {
	for _, field := range []struct {
		name, value string
		allowed     []string
	}{
		{"view", p.View, viewModes},
		{"sort by", p.SortBy, sortFields},
		{"sort order", p.SortOrder, sortOrders},
	} {
		if field.value != "" && !slices.Contains(field.allowed, field.value) {
			return common.Errorf(common.EINVAL, "Invalid %s %q, expected one of %v", field.name, field.value, field.allowed)
		}
	}
	return nil
}

// merge overlays the non-empty fields of update.
func (p ViewPreferences) merge(update ViewPreferences) ViewPreferences {
	if update.View != "" {
		p.View = update.View
	}
	if update.SortBy != "" {
		p.SortBy = update.SortBy
	}
	if update.SortOrder != "" {
		p.SortOrder = update.SortOrder
	}
	return p
}

func decodeViewPreferences(stored string) ViewPreferences {
	prefs := DefaultViewPreferences
	if stored == "" {
		return prefs
	}
	var saved ViewPreferences
	if err := yaml.Unmarshal([]byte(stored), &saved); err != nil {
		log.Warnf("[Preferences] ignoring unreadable view preferences: %v", err)
		return prefs
	}
	if err := saved.Validate(); err != nil {
		log.Warnf("[Preferences] ignoring invalid view preferences: %v", err)
		return prefs
	}
	return prefs.merge(saved)
}

// ViewPreferences returns the stored view preferences, filling unset fields
// from DefaultViewPreferences.
func (f *Files) ViewPreferences(ctx context.Context) (ViewPreferences, error) {
	stored, err := f.meta.Config(ctx, viewPreferencesKey)
	if err != nil {
		return ViewPreferences{}, err
	}
	return decodeViewPreferences(stored), nil
}

// UpdateViewPreferences merges the non-empty fields of update into the
// stored preferences and returns the result.
func (f *Files) UpdateViewPreferences(ctx context.Context, update ViewPreferences) (ViewPreferences, error) {
	if err := update.Validate(); err != nil {
		return ViewPreferences{}, err
	}

	var updated ViewPreferences
	err := f.meta.WithWriteLock(ctx, func(tx *storage.Tx) error {
		stored, err := tx.Config(viewPreferencesKey)
		if err != nil {
			return err
		}
		updated = decodeViewPreferences(stored).merge(update)
		data, err := yaml.Marshal(updated)
		if err != nil {
			return err
		}
		return tx.SetConfig(viewPreferencesKey, string(data))
	})
	if err != nil {
		return ViewPreferences{}, err
	}
	log.Debugf("[Preferences] view preferences now %+v", updated)
	return updated, nil
}
