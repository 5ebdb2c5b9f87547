// services/search_service.go - Full-Text Search Mirror Synchronizer
package services

import (
	"strings"

	"certvault/models"

	"gorm.io/gorm"
)

const (
	searchLimitMin = 1
	searchLimitMax = 500
)

// SearchIndexService keeps the two FTS5 mirrors (awards_fts,
// members_fts) in sync with the primary tables. Mirror rows are keyed
// by rowid = entity id and written only through explicit calls here;
// there are no triggers and no live joins.
//
// Every method that writes takes the caller's transaction handle, so a
// rollback discards the paired index write along with the primary one.
// Faults are returned as plain errors; callers log them and degrade
// (substring search, empty result) instead of aborting their write.
type SearchIndexService struct {
	db *gorm.DB
}

func NewSearchIndexService(db *gorm.DB) *SearchIndexService {
	return &SearchIndexService{db: db}
}

// handle returns the caller's unit of work, or the service handle for
// standalone calls.
func (s *SearchIndexService) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

// ================== AWARD MIRROR ==================

// UpsertAward refreshes the mirror row for one award. FTS5 virtual
// tables have no native UPDATE, so every upsert is a delete+insert
// pair inside the caller's unit of work.
func (s *SearchIndexService) UpsertAward(tx *gorm.DB, awardID uint, competition, code, remarks string, memberNames []string) error {
	h := s.handle(tx)
	if err := h.Exec("DELETE FROM awards_fts WHERE rowid = ?", awardID).Error; err != nil {
		return err
	}
	return h.Exec(
		"INSERT INTO awards_fts (rowid, competition_name, certificate_code, remarks, member_names) VALUES (?, ?, ?, ?, ?)",
		awardID, competition, code, remarks, strings.Join(memberNames, " "),
	).Error
}

// DeleteAward removes one award from the mirror.
func (s *SearchIndexService) DeleteAward(tx *gorm.DB, awardID uint) error {
	return s.handle(tx).Exec("DELETE FROM awards_fts WHERE rowid = ?", awardID).Error
}

// SearchAwards returns candidate award ids in index-rank order. An
// empty query yields an empty result without touching the index.
func (s *SearchIndexService) SearchAwards(query string, limit int) ([]uint, error) {
	match := sanitizeMatch(query)
	if match == "" {
		return nil, nil
	}

	var ids []uint
	err := s.db.Raw(
		"SELECT rowid FROM awards_fts WHERE awards_fts MATCH ? ORDER BY rank LIMIT ?",
		match, clampLimit(limit),
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ================== MEMBER MIRROR ==================

// UpsertMember refreshes the mirror row for one team member profile.
func (s *SearchIndexService) UpsertMember(tx *gorm.DB, member *models.TeamMember) error {
	h := s.handle(tx)
	if err := h.Exec("DELETE FROM members_fts WHERE rowid = ?", member.ID).Error; err != nil {
		return err
	}
	return h.Exec(
		"INSERT INTO members_fts (rowid, name, student_id, major, class_name, college) VALUES (?, ?, ?, ?, ?, ?)",
		member.ID, member.Name, member.StudentID, member.Major, member.ClassName, member.College,
	).Error
}

// DeleteMember removes one profile from the mirror.
func (s *SearchIndexService) DeleteMember(tx *gorm.DB, memberID uint) error {
	return s.handle(tx).Exec("DELETE FROM members_fts WHERE rowid = ?", memberID).Error
}

// SearchMembers returns candidate member ids in index-rank order.
func (s *SearchIndexService) SearchMembers(query string, limit int) ([]uint, error) {
	match := sanitizeMatch(query)
	if match == "" {
		return nil, nil
	}

	var ids []uint
	err := s.db.Raw(
		"SELECT rowid FROM members_fts WHERE members_fts MATCH ? ORDER BY rank LIMIT ?",
		match, clampLimit(limit),
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ================== REBUILD ==================

// RebuildIfEmpty repopulates either mirror that is empty while its
// source table has indexable rows, reporting whether any rebuild ran.
// Run at startup: it covers first installs and files upgraded from
// versions without the mirrors. Soft-deleted awards stay out of the
// mirror, so they do not count as indexable.
func (s *SearchIndexService) RebuildIfEmpty() (bool, error) {
	rebuilt := false

	var awardRows, awardIndexed int64
	if err := s.db.Model(&models.Award{}).Where("deleted = ?", false).Count(&awardRows).Error; err != nil {
		return false, err
	}
	if err := s.db.Raw("SELECT COUNT(*) FROM awards_fts").Scan(&awardIndexed).Error; err != nil {
		return false, err
	}
	if awardIndexed == 0 && awardRows > 0 {
		if _, err := s.rebuildAwards(); err != nil {
			return false, err
		}
		rebuilt = true
	}

	var memberRows, memberIndexed int64
	if err := s.db.Model(&models.TeamMember{}).Count(&memberRows).Error; err != nil {
		return false, err
	}
	if err := s.db.Raw("SELECT COUNT(*) FROM members_fts").Scan(&memberIndexed).Error; err != nil {
		return false, err
	}
	if memberIndexed == 0 && memberRows > 0 {
		if _, err := s.rebuildMembers(); err != nil {
			return false, err
		}
		rebuilt = true
	}
	return rebuilt, nil
}

// RebuildAll clears both mirrors and repopulates them from the primary
// tables, returning post-rebuild row counts.
func (s *SearchIndexService) RebuildAll() (awardCount int64, memberCount int64, err error) {
	awardCount, err = s.rebuildAwards()
	if err != nil {
		return 0, 0, err
	}
	memberCount, err = s.rebuildMembers()
	if err != nil {
		return 0, 0, err
	}
	return awardCount, memberCount, nil
}

func (s *SearchIndexService) rebuildAwards() (int64, error) {
	var count int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM awards_fts").Error; err != nil {
			return err
		}

		// Soft-deleted awards stay out of the mirror.
		var awards []models.Award
		if err := tx.Preload("Members", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC")
		}).Where("deleted = ?", false).Find(&awards).Error; err != nil {
			return err
		}

		for i := range awards {
			a := &awards[i]
			if err := s.UpsertAward(tx, a.ID, a.CompetitionName, a.CertificateCode, a.Remarks, a.MemberNames()); err != nil {
				return err
			}
		}
		count = int64(len(awards))
		return nil
	})
	return count, err
}

func (s *SearchIndexService) rebuildMembers() (int64, error) {
	var count int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM members_fts").Error; err != nil {
			return err
		}

		var members []models.TeamMember
		if err := tx.Find(&members).Error; err != nil {
			return err
		}
		for i := range members {
			if err := s.UpsertMember(tx, &members[i]); err != nil {
				return err
			}
		}
		count = int64(len(members))
		return nil
	})
	return count, err
}

// ================== HELPERS ==================

func clampLimit(limit int) int {
	if limit < searchLimitMin {
		return searchLimitMin
	}
	if limit > searchLimitMax {
		return searchLimitMax
	}
	return limit
}

// sanitizeMatch wraps each term in double quotes so user input cannot
// break FTS5 match syntax: `fix "auth` becomes `"fix" "auth"`.
func sanitizeMatch(query string) string {
	words := strings.Fields(query)
	for i, w := range words {
		w = strings.ReplaceAll(w, `"`, "")
		words[i] = `"` + w + `"`
	}
	// A query of nothing but quote characters sanitizes to empty terms
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w != `""` {
			out = append(out, w)
		}
	}
	return strings.Join(out, " ")
}
