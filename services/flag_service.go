// services/flag_service.go - Custom Boolean Flags on Awards
package services

import (
	"fmt"
	"regexp"
	"strings"

	"certvault/models"

	"gorm.io/gorm"
)

// flagKeyPattern constrains machine keys to a stable identifier shape.
var flagKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,63}$`)

// truthy and falsy accept both Chinese and English spreadsheet tokens.
var (
	truthyTokens = map[string]bool{
		"是": true, "真": true, "1": true, "true": true, "yes": true, "y": true,
	}
	falsyTokens = map[string]bool{
		"否": true, "假": true, "0": true, "false": true, "no": true, "n": true,
	}
)

// FlagService manages user-defined boolean flags and their per-award
// values.
type FlagService struct {
	db *gorm.DB
}

func NewFlagService(db *gorm.DB) *FlagService {
	return &FlagService{db: db}
}

// ================== FLAG DEFINITIONS ==================

func (s *FlagService) ListFlags() ([]models.CustomFlag, error) {
	var flags []models.CustomFlag
	err := s.db.Order("sort_order ASC, id ASC").Find(&flags).Error
	return flags, err
}

func (s *FlagService) GetFlag(key string) (*models.CustomFlag, error) {
	var flag models.CustomFlag
	if err := s.db.Where("key = ?", key).First(&flag).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &flag, nil
}

// CreateFlag registers a new flag definition. Keys must match the
// identifier pattern and be unique.
func (s *FlagService) CreateFlag(key, label string, defaultValue bool, sortOrder int) (*models.CustomFlag, error) {
	key = strings.TrimSpace(key)
	label = strings.TrimSpace(label)
	if !flagKeyPattern.MatchString(key) {
		return nil, fmt.Errorf("%w: flag key %q must match %s", ErrValidation, key, flagKeyPattern.String())
	}
	if label == "" {
		label = key
	}

	flag := models.CustomFlag{
		Key:          key,
		Label:        label,
		DefaultValue: defaultValue,
		SortOrder:    sortOrder,
	}
	if err := s.db.Create(&flag).Error; err != nil {
		return nil, err
	}
	return &flag, nil
}

// UpdateFlag changes label, default or ordering. The key is immutable.
func (s *FlagService) UpdateFlag(key, label string, defaultValue bool, sortOrder int) (*models.CustomFlag, error) {
	flag, err := s.GetFlag(key)
	if err != nil {
		return nil, err
	}

	label = strings.TrimSpace(label)
	if label == "" {
		label = flag.Label
	}
	err = s.db.Model(flag).Updates(map[string]interface{}{
		"label":         label,
		"default_value": defaultValue,
		"sort_order":    sortOrder,
	}).Error
	if err != nil {
		return nil, err
	}
	return flag, nil
}

// DeleteFlag removes a definition and every stored value for it.
func (s *FlagService) DeleteFlag(key string) error {
	flag, err := s.GetFlag(key)
	if err != nil {
		return err
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("flag_key = ?", flag.Key).Delete(&models.AwardFlagValue{}).Error; err != nil {
			return err
		}
		return tx.Delete(flag).Error
	})
}

// ================== PER-AWARD VALUES ==================

// SetAwardFlags replaces an award's stored values with the given map,
// inside the caller's transaction. Keys absent from the map fall back
// to the flag's default on read; unknown keys are rejected.
func (s *FlagService) SetAwardFlags(tx *gorm.DB, awardID uint, values map[string]bool) error {
	if tx == nil {
		tx = s.db
	}

	var flags []models.CustomFlag
	if err := tx.Find(&flags).Error; err != nil {
		return err
	}
	known := make(map[string]bool, len(flags))
	for _, f := range flags {
		known[f.Key] = true
	}
	for key := range values {
		if !known[key] {
			return fmt.Errorf("%w: unknown flag key %q", ErrValidation, key)
		}
	}

	if err := tx.Where("award_id = ?", awardID).Delete(&models.AwardFlagValue{}).Error; err != nil {
		return err
	}
	for key, value := range values {
		row := models.AwardFlagValue{AwardID: awardID, FlagKey: key, Value: value}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

// GetAwardFlags returns the effective flag map of one award: stored
// values overlaid on the definitions' defaults.
func (s *FlagService) GetAwardFlags(awardID uint) (map[string]bool, error) {
	byAward, err := s.GetFlagsForAwards([]uint{awardID})
	if err != nil {
		return nil, err
	}
	return byAward[awardID], nil
}

// GetFlagsForAwards resolves effective flag maps for many awards in one
// pass, for list and export views.
func (s *FlagService) GetFlagsForAwards(awardIDs []uint) (map[uint]map[string]bool, error) {
	flags, err := s.ListFlags()
	if err != nil {
		return nil, err
	}

	result := make(map[uint]map[string]bool, len(awardIDs))
	for _, id := range awardIDs {
		effective := make(map[string]bool, len(flags))
		for _, f := range flags {
			if f.Enabled {
				effective[f.Key] = f.DefaultValue
			}
		}
		result[id] = effective
	}
	if len(awardIDs) == 0 || len(flags) == 0 {
		return result, nil
	}

	var values []models.AwardFlagValue
	if err := s.db.Where("award_id IN ?", awardIDs).Find(&values).Error; err != nil {
		return nil, err
	}
	for _, v := range values {
		if effective, ok := result[v.AwardID]; ok {
			if _, known := effective[v.FlagKey]; known {
				effective[v.FlagKey] = v.Value
			}
		}
	}
	return result, nil
}

// ================== CELL PARSING ==================

// ParseFlagCell interprets a spreadsheet cell as a boolean. Empty or
// unrecognized cells report ok=false so the caller keeps the flag's
// default.
func ParseFlagCell(cell string) (value bool, ok bool) {
	token := strings.ToLower(strings.TrimSpace(cell))
	if truthyTokens[token] {
		return true, true
	}
	if falsyTokens[token] {
		return false, true
	}
	return false, false
}

// FlagColumnHeader renders the import/export column header for a flag,
// e.g. "获奖学金 (scholarship)".
func FlagColumnHeader(f *models.CustomFlag) string {
	return fmt.Sprintf("%s (%s)", f.Label, f.Key)
}

// MatchFlagColumn resolves a spreadsheet header to a flag definition,
// accepting the full "<label> (<key>)" form, the bare key, or the bare
// label.
func MatchFlagColumn(header string, flags []models.CustomFlag) (*models.CustomFlag, bool) {
	header = strings.TrimSpace(header)
	for i := range flags {
		f := &flags[i]
		if header == FlagColumnHeader(f) || header == f.Key || header == f.Label {
			return f, true
		}
	}
	return nil, false
}
