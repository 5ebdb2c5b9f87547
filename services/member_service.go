// services/member_service.go - Team Member Profiles
package services

import (
	"log"
	"strings"

	"certvault/models"

	"gorm.io/gorm"
)

// MemberService manages team member profiles. Award rows keep their own
// name snapshots, so deleting a profile never touches award history.
type MemberService struct {
	db     *gorm.DB
	search *SearchIndexService
}

func NewMemberService(db *gorm.DB, search *SearchIndexService) *MemberService {
	return &MemberService{db: db, search: search}
}

func (s *MemberService) List() ([]models.TeamMember, error) {
	var members []models.TeamMember
	err := s.db.Order("sort_index ASC, id ASC").Find(&members).Error
	return members, err
}

func (s *MemberService) Get(id uint) (*models.TeamMember, error) {
	var member models.TeamMember
	if err := s.db.First(&member, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &member, nil
}

func (s *MemberService) GetByName(name string) (*models.TeamMember, error) {
	var member models.TeamMember
	if err := s.db.Where("name = ?", name).First(&member).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &member, nil
}

// Create inserts a profile and mirrors it into the search index. Index
// faults are logged, never fatal.
func (s *MemberService) Create(member *models.TeamMember) error {
	member.Name = strings.TrimSpace(member.Name)
	if member.Name == "" {
		return ErrValidation
	}
	if err := s.db.Create(member).Error; err != nil {
		return err
	}
	if err := s.search.UpsertMember(nil, member); err != nil {
		log.Printf("Search index update failed for member %d: %v", member.ID, err)
	}
	return nil
}

// Update applies the given fields and refreshes the index entry.
func (s *MemberService) Update(id uint, updates map[string]interface{}) (*models.TeamMember, error) {
	member, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if name, ok := updates["name"].(string); ok {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, ErrValidation
		}
		updates["name"] = name
	}
	if err := s.db.Model(member).Updates(updates).Error; err != nil {
		return nil, err
	}
	if err := s.search.UpsertMember(nil, member); err != nil {
		log.Printf("Search index update failed for member %d: %v", member.ID, err)
	}
	return member, nil
}

// Delete removes a profile. Award member rows that pointed at it keep
// their name snapshots; the link column is nulled by the foreign key.
func (s *MemberService) Delete(id uint) error {
	member, err := s.Get(id)
	if err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.AwardMember{}).
			Where("member_id = ?", id).
			Update("member_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(member).Error
	})
	if err != nil {
		return err
	}

	if err := s.search.DeleteMember(nil, id); err != nil {
		log.Printf("Search index delete failed for member %d: %v", id, err)
	}
	return nil
}

// Search finds profiles by full-text match, falling back to substring
// matching on name and student id when the index is unavailable.
func (s *MemberService) Search(query string, limit int) ([]models.TeamMember, error) {
	query = strings.TrimSpace(query)
	if limit <= 0 {
		limit = 100
	}
	if query == "" {
		return s.List()
	}

	ids, err := s.search.SearchMembers(query, limit)
	if err != nil {
		log.Printf("Member search degraded to substring match: %v", err)
	}
	if err != nil || len(ids) == 0 {
		// Also covers queries under the trigram three-character floor.
		pattern := "%" + query + "%"
		var members []models.TeamMember
		err := s.db.Where("name LIKE ? OR student_id LIKE ?", pattern, pattern).
			Order("sort_index ASC, id ASC").
			Limit(limit).
			Find(&members).Error
		return members, err
	}

	var members []models.TeamMember
	if err := s.db.Where("id IN ?", ids).Find(&members).Error; err != nil {
		return nil, err
	}

	// Preserve index rank order.
	byID := make(map[uint]models.TeamMember, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}
	ordered := make([]models.TeamMember, 0, len(ids))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			ordered = append(ordered, m)
		}
	}
	return ordered, nil
}
