// services/award_service.go - Award Records and Member Snapshots
package services

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"certvault/models"

	"gorm.io/gorm"
)

// MemberMeta carries optional profile fields supplied alongside a
// member name. Only non-empty fields are merged into the profile.
type MemberMeta struct {
	Gender    string
	IDCard    string
	Phone     string
	StudentID string
	Email     string
	Major     string
	ClassName string
	College   string
}

// MemberDescriptor names one participant of an award. A name-only
// descriptor records just the snapshot; a linked descriptor also
// finds or creates the matching profile and merges meta into it.
type MemberDescriptor struct {
	Name   string
	Linked bool
	Meta   MemberMeta
}

func NameOnly(name string) MemberDescriptor {
	return MemberDescriptor{Name: name}
}

func LinkedMember(name string, meta MemberMeta) MemberDescriptor {
	return MemberDescriptor{Name: name, Linked: true, Meta: meta}
}

// CreateAwardInput collects everything a new award needs. Attachment
// sources are paths to copy in; missing ones are skipped.
type CreateAwardInput struct {
	CompetitionName   string
	AwardDate         time.Time
	Level             string
	Rank              string
	CertificateCode   string
	Remarks           string
	Members           []MemberDescriptor
	AttachmentSources []string
	Flags             map[string]bool
}

// UpdateAwardInput applies a partial update. Nil pointer fields and nil
// slices mean "leave unchanged"; an empty non-nil slice clears.
type UpdateAwardInput struct {
	CompetitionName   *string
	AwardDate         *time.Time
	Level             *string
	Rank              *string
	CertificateCode   *string
	Remarks           *string
	Members           []MemberDescriptor
	MembersSet        bool
	AttachmentSources []string
	AttachmentsSet    bool
	Flags             map[string]bool
}

// AwardFilter narrows List and Search results. Zero values are
// ignored.
type AwardFilter struct {
	Level          string
	Rank           string
	Year           int
	DateFrom       time.Time
	DateTo         time.Time
	MemberName     string
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// AwardService is the primary read/write surface for award records. It
// owns the member snapshot rules and keeps the search index and
// attachment store in step with every mutation.
type AwardService struct {
	db          *gorm.DB
	search      *SearchIndexService
	attachments *AttachmentService
	flags       *FlagService
}

func NewAwardService(db *gorm.DB, search *SearchIndexService, attachments *AttachmentService, flags *FlagService) *AwardService {
	return &AwardService{db: db, search: search, attachments: attachments, flags: flags}
}

// ================== CREATE / UPDATE ==================

// Create inserts an award with its member snapshots, flag values and
// attachment copies in one transaction. Copied files are removed again
// if the transaction fails.
func (s *AwardService) Create(input CreateAwardInput) (*models.Award, error) {
	var award *models.Award
	var copied []models.Attachment
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		award, copied, err = s.CreateTx(tx, input)
		return err
	})
	if err != nil {
		s.attachments.RemoveFiles(copied)
		return nil, err
	}
	return s.Get(award.ID)
}

// CreateTx performs the creation inside an existing transaction. The
// returned attachments are the files copied in; the caller must remove
// them if the transaction does not commit. Used by the bulk importer to
// wrap rows in savepoints.
func (s *AwardService) CreateTx(tx *gorm.DB, input CreateAwardInput) (*models.Award, []models.Attachment, error) {
	input.CompetitionName = strings.TrimSpace(input.CompetitionName)
	if input.CompetitionName == "" {
		return nil, nil, fmt.Errorf("%w: competition name is required", ErrValidation)
	}

	award := &models.Award{
		CompetitionName: input.CompetitionName,
		AwardDate:       input.AwardDate,
		Level:           strings.TrimSpace(input.Level),
		Rank:            strings.TrimSpace(input.Rank),
		CertificateCode: strings.TrimSpace(input.CertificateCode),
		Remarks:         strings.TrimSpace(input.Remarks),
	}

	if err := tx.Create(award).Error; err != nil {
		return nil, nil, err
	}

	names, err := s.writeMemberSnapshots(tx, award.ID, input.Members)
	if err != nil {
		return nil, nil, err
	}

	if input.Flags != nil {
		if err := s.flags.SetAwardFlags(tx, award.ID, input.Flags); err != nil {
			return nil, nil, err
		}
	}

	var copied []models.Attachment
	if len(input.AttachmentSources) > 0 {
		copied, err = s.attachments.Save(tx, award.ID, award.CompetitionName, input.AttachmentSources)
		if err != nil {
			return nil, copied, err
		}
	}

	if err := s.search.UpsertAward(tx, award.ID, award.CompetitionName, award.CertificateCode, award.Remarks, names); err != nil {
		return nil, copied, err
	}
	return award, copied, nil
}

// Update applies a partial edit. When members are supplied the snapshot
// list is rebuilt from scratch; when attachment sources are supplied
// the stored set is reconciled against them: already-stored paths are
// kept, new paths copied in, everything else soft-deleted to trash.
func (s *AwardService) Update(id uint, input UpdateAwardInput) (*models.Award, error) {
	award, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if input.CompetitionName != nil {
		name := strings.TrimSpace(*input.CompetitionName)
		if name == "" {
			return nil, fmt.Errorf("%w: competition name is required", ErrValidation)
		}
		updates["competition_name"] = name
	}
	if input.AwardDate != nil {
		updates["award_date"] = *input.AwardDate
	}
	if input.Level != nil {
		updates["level"] = strings.TrimSpace(*input.Level)
	}
	if input.Rank != nil {
		updates["rank"] = strings.TrimSpace(*input.Rank)
	}
	if input.CertificateCode != nil {
		updates["certificate_code"] = strings.TrimSpace(*input.CertificateCode)
	}
	if input.Remarks != nil {
		updates["remarks"] = strings.TrimSpace(*input.Remarks)
	}

	var copied []models.Attachment
	var trashMoves []pendingMove
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := tx.Model(award).Updates(updates).Error; err != nil {
				return err
			}
		}
		if err := tx.First(award, id).Error; err != nil {
			return err
		}

		names := award.MemberNames()
		if input.MembersSet {
			if err := tx.Where("award_id = ?", id).Delete(&models.AwardMember{}).Error; err != nil {
				return err
			}
			var err error
			names, err = s.writeMemberSnapshots(tx, id, input.Members)
			if err != nil {
				return err
			}
		}

		if input.Flags != nil {
			if err := s.flags.SetAwardFlags(tx, id, input.Flags); err != nil {
				return err
			}
		}

		if input.AttachmentsSet {
			var toTrash []uint
			var err error
			copied, toTrash, err = s.reconcileAttachments(tx, award, input.AttachmentSources)
			if err != nil {
				return err
			}
			// Dropped attachments are flagged inside this transaction;
			// only the physical moves wait for the commit.
			trashMoves, err = s.attachments.markDeletedTx(tx, toTrash)
			if err != nil {
				return err
			}
		}

		return s.search.UpsertAward(tx, id, currentString(updates, "competition_name", award.CompetitionName),
			currentString(updates, "certificate_code", award.CertificateCode),
			currentString(updates, "remarks", award.Remarks), names)
	})
	if err != nil {
		s.attachments.RemoveFiles(copied)
		return nil, err
	}

	s.attachments.applyMoves(trashMoves)
	return s.Get(id)
}

// writeMemberSnapshots creates the snapshot rows for an award in input
// order. Blank names are skipped; duplicate names are allowed and keep
// their own positions. Linked descriptors find or create the profile
// by exact name and merge non-empty meta into it; name-only
// descriptors stay unlinked.
func (s *AwardService) writeMemberSnapshots(tx *gorm.DB, awardID uint, descriptors []MemberDescriptor) ([]string, error) {
	var names []string
	position := 0

	for _, d := range descriptors {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			continue
		}

		row := models.AwardMember{
			AwardID:    awardID,
			MemberName: name,
			SortOrder:  position,
		}

		if d.Linked {
			profile, err := s.findOrCreateProfile(tx, name, d.Meta)
			if err != nil {
				return nil, err
			}
			row.MemberID = &profile.ID
		}

		if err := tx.Create(&row).Error; err != nil {
			return nil, err
		}
		names = append(names, name)
		position++
	}
	return names, nil
}

func (s *AwardService) findOrCreateProfile(tx *gorm.DB, name string, meta MemberMeta) (*models.TeamMember, error) {
	var profile models.TeamMember
	err := tx.Where("name = ?", name).First(&profile).Error
	if err == gorm.ErrRecordNotFound {
		profile = models.TeamMember{Name: name}
		applyMeta(&profile, meta)
		if err := tx.Create(&profile).Error; err != nil {
			return nil, err
		}
		if err := s.search.UpsertMember(tx, &profile); err != nil {
			return nil, err
		}
		return &profile, nil
	}
	if err != nil {
		return nil, err
	}

	before := profile
	applyMeta(&profile, meta)
	if profile != before {
		if err := tx.Save(&profile).Error; err != nil {
			return nil, err
		}
		if err := s.search.UpsertMember(tx, &profile); err != nil {
			return nil, err
		}
	}
	return &profile, nil
}

func applyMeta(profile *models.TeamMember, meta MemberMeta) {
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&profile.Gender, meta.Gender)
	set(&profile.IDCard, meta.IDCard)
	set(&profile.Phone, meta.Phone)
	set(&profile.StudentID, meta.StudentID)
	set(&profile.Email, meta.Email)
	set(&profile.Major, meta.Major)
	set(&profile.ClassName, meta.ClassName)
	set(&profile.College, meta.College)
}

// reconcileAttachments diffs the desired source paths against the
// award's active attachments. Returns newly copied rows and the ids to
// move to trash after commit.
func (s *AwardService) reconcileAttachments(tx *gorm.DB, award *models.Award, sources []string) ([]models.Attachment, []uint, error) {
	var active []models.Attachment
	if err := tx.Where("award_id = ? AND deleted = ?", award.ID, false).Find(&active).Error; err != nil {
		return nil, nil, err
	}

	keep := map[uint]bool{}
	var newSources []string
	for _, src := range sources {
		matched := false
		for _, a := range active {
			if samePath(src, s.attachments.AbsolutePath(&a)) {
				keep[a.ID] = true
				matched = true
				break
			}
		}
		if !matched {
			newSources = append(newSources, src)
		}
	}

	var toTrash []uint
	for _, a := range active {
		if !keep[a.ID] {
			toTrash = append(toTrash, a.ID)
		}
	}

	var copied []models.Attachment
	if len(newSources) > 0 {
		var err error
		copied, err = s.attachments.Save(tx, award.ID, award.CompetitionName, newSources)
		if err != nil {
			return nil, nil, err
		}
	}
	return copied, toTrash, nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

func currentString(updates map[string]interface{}, key, fallback string) string {
	if v, ok := updates[key].(string); ok {
		return v
	}
	return fallback
}

// ================== READS ==================

// Get loads one award with its ordered member snapshots and active
// attachments, regardless of deletion state.
func (s *AwardService) Get(id uint) (*models.Award, error) {
	var award models.Award
	err := s.db.
		Preload("Members", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC")
		}).
		Preload("Attachments", "deleted = ?", false).
		First(&award, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &award, nil
}

// List returns active awards matching the filter, newest award date
// first.
func (s *AwardService) List(filter AwardFilter) ([]models.Award, error) {
	query := s.filteredQuery(filter).Order("award_date DESC, id DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit).Offset(filter.Offset)
	}

	var awards []models.Award
	err := query.Find(&awards).Error
	return awards, err
}

// ListDeleted returns soft-deleted awards, most recently deleted first.
func (s *AwardService) ListDeleted() ([]models.Award, error) {
	var awards []models.Award
	err := s.db.
		Preload("Members", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC")
		}).
		Where("deleted = ?", true).
		Order("deleted_at DESC").
		Find(&awards).Error
	return awards, err
}

// Count returns the number of active awards matching the filter.
func (s *AwardService) Count(filter AwardFilter) (int64, error) {
	var count int64
	err := s.filteredQuery(filter).Model(&models.Award{}).Count(&count).Error
	return count, err
}

func (s *AwardService) filteredQuery(filter AwardFilter) *gorm.DB {
	query := s.db.
		Preload("Members", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC")
		}).
		Preload("Attachments", "deleted = ?", false)

	if !filter.IncludeDeleted {
		query = query.Where("awards.deleted = ?", false)
	}
	if filter.Level != "" {
		query = query.Where("awards.level = ?", filter.Level)
	}
	if filter.Rank != "" {
		query = query.Where("awards.rank = ?", filter.Rank)
	}
	if filter.Year > 0 {
		query = query.Where("strftime('%Y', awards.award_date) = ?", fmt.Sprintf("%04d", filter.Year))
	}
	if !filter.DateFrom.IsZero() {
		query = query.Where("awards.award_date >= ?", filter.DateFrom)
	}
	if !filter.DateTo.IsZero() {
		query = query.Where("awards.award_date <= ?", filter.DateTo)
	}
	if filter.MemberName != "" {
		query = query.Where(
			"awards.id IN (SELECT award_id FROM award_members WHERE member_name = ?)",
			strings.TrimSpace(filter.MemberName),
		)
	}
	return query
}

// ================== SEARCH ==================

// Search combines full-text candidates with the structured filter. FTS
// hits come back in rank order; when the index errors out the query
// degrades to substring matching on competition name and certificate
// code ordered by award date.
func (s *AwardService) Search(query string, filter AwardFilter) ([]models.Award, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.List(filter)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	ids, err := s.search.SearchAwards(query, limit)
	if err != nil {
		log.Printf("Award search degraded to substring match: %v", err)
		pattern := "%" + query + "%"
		var awards []models.Award
		findErr := s.filteredQuery(filter).
			Where("awards.competition_name LIKE ? OR awards.certificate_code LIKE ?", pattern, pattern).
			Order("award_date DESC, id DESC").
			Limit(limit).
			Find(&awards).Error
		return awards, findErr
	}
	if len(ids) == 0 {
		// Trigram FTS cannot match queries shorter than three
		// characters, so an empty candidate set falls through to
		// substring matching too.
		pattern := "%" + query + "%"
		var awards []models.Award
		err := s.filteredQuery(filter).
			Where("awards.competition_name LIKE ? OR awards.certificate_code LIKE ?", pattern, pattern).
			Order("award_date DESC, id DESC").
			Limit(limit).
			Find(&awards).Error
		return awards, err
	}

	var awards []models.Award
	if err := s.filteredQuery(filter).Where("awards.id IN ?", ids).Find(&awards).Error; err != nil {
		return nil, err
	}

	// Preserve index rank order.
	byID := make(map[uint]models.Award, len(awards))
	for _, a := range awards {
		byID[a.ID] = a
	}
	ordered := make([]models.Award, 0, len(ids))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			ordered = append(ordered, a)
		}
	}
	return ordered, nil
}

// ================== DELETE / RESTORE ==================

// Delete soft-deletes an award and drops it from the search index so
// deleted records never surface in full-text results.
func (s *AwardService) Delete(id uint) error {
	award, err := s.Get(id)
	if err != nil {
		return err
	}
	if award.Deleted {
		return nil
	}

	now := time.Now().UTC()
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(award).Updates(map[string]interface{}{
			"deleted":    true,
			"deleted_at": now,
		}).Error; err != nil {
			return err
		}
		return s.search.DeleteAward(tx, id)
	})
}

// Restore brings a soft-deleted award back and re-indexes it from the
// stored member snapshots.
func (s *AwardService) Restore(id uint) error {
	award, err := s.Get(id)
	if err != nil {
		return err
	}
	if !award.Deleted {
		return nil
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(award).Updates(map[string]interface{}{
			"deleted":    false,
			"deleted_at": nil,
		}).Error; err != nil {
			return err
		}
		return s.search.UpsertAward(tx, id, award.CompetitionName, award.CertificateCode, award.Remarks, award.MemberNames())
	})
}

// PermanentlyDelete removes an award and everything hanging off it:
// attachment files and rows, member snapshots, flag values, the index
// entry and finally the award row itself. File unlinks are best-effort.
func (s *AwardService) PermanentlyDelete(id uint) error {
	award, err := s.Get(id)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.attachments.PurgeForAward(tx, id); err != nil {
			return err
		}
		if err := tx.Where("award_id = ?", id).Delete(&models.AwardMember{}).Error; err != nil {
			return err
		}
		if err := tx.Where("award_id = ?", id).Delete(&models.AwardFlagValue{}).Error; err != nil {
			return err
		}
		if err := s.search.DeleteAward(tx, id); err != nil {
			return err
		}
		return tx.Delete(award).Error
	})
}

// ================== BATCH OPERATIONS ==================

// BatchDelete soft-deletes every given award in one transaction and
// drops each from the search index. Already-deleted ids are skipped.
// Returns the number of awards flagged.
func (s *AwardService) BatchDelete(ids []uint) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	count := 0
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var awards []models.Award
		if err := tx.Where("id IN ? AND deleted = ?", ids, false).Find(&awards).Error; err != nil {
			return err
		}

		now := time.Now().UTC()
		for i := range awards {
			a := &awards[i]
			if err := tx.Model(a).Updates(map[string]interface{}{
				"deleted":    true,
				"deleted_at": now,
			}).Error; err != nil {
				return err
			}
			if err := s.search.DeleteAward(tx, a.ID); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// BatchUpdateLevel sets the level on every given award, returning the
// number of rows changed. The level text is not part of the search
// document, so no index refresh is needed.
func (s *AwardService) BatchUpdateLevel(ids []uint, level string) (int64, error) {
	return s.batchUpdateColumn(ids, "level", level)
}

// BatchUpdateRank sets the rank on every given award, returning the
// number of rows changed.
func (s *AwardService) BatchUpdateRank(ids []uint, rank string) (int64, error) {
	return s.batchUpdateColumn(ids, "rank", rank)
}

func (s *AwardService) batchUpdateColumn(ids []uint, column, value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("%w: %s is required", ErrValidation, column)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	result := s.db.Model(&models.Award{}).Where("id IN ?", ids).Update(column, value)
	return result.RowsAffected, result.Error
}
