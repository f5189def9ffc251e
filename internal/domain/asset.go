package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Well-known storage roles on Asset.StorageKeys.
const (
	StorageRoleRaw         = "raw"
	StorageRoleProcessed   = "processed"
	StorageRolePublic      = "public"
	StorageRoleDiarization = "diarization"
)

// PublicLangRole returns the per-language published-audio role.
func PublicLangRole(lang string) string { return "public_" + lang }

type Asset struct {
	ID          uint                                  `gorm:"primaryKey" json:"id"`
	ExternalID  string                                `gorm:"column:external_id;not null;uniqueIndex" json:"external_id"`
	UserID      *string                               `gorm:"column:user_id;index" json:"user_id,omitempty"`
	SrcLang     *string                               `gorm:"column:src_lang;index" json:"src_lang,omitempty"`
	TargetLangs datatypes.JSONSlice[string]           `gorm:"column:target_langs" json:"target_langs"`
	StorageKeys datatypes.JSONType[map[string]string] `gorm:"column:storage_keys" json:"storage_keys"`
	DurationSec *float64                              `gorm:"column:duration_sec" json:"duration_sec,omitempty"`
	CreatedAt   time.Time                             `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time                             `gorm:"not null" json:"updated_at"`
}

func (Asset) TableName() string { return "assets" }

// StorageKey returns the object key stored under the given role, if any.
func (a *Asset) StorageKey(role string) (string, bool) {
	keys := a.StorageKeys.Data()
	if keys == nil {
		return "", false
	}
	v, ok := keys[role]
	return v, ok && v != ""
}

// SetStorageKey copies the key map before mutating so callers holding the
// old map are not affected mid-transaction.
func (a *Asset) SetStorageKey(role, key string) {
	keys := a.StorageKeys.Data()
	next := make(map[string]string, len(keys)+1)
	for k, v := range keys {
		next[k] = v
	}
	next[role] = key
	a.StorageKeys = datatypes.NewJSONType(next)
}
