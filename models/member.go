// models/member.go - Reusable team member profiles
package models

import "time"

// TeamMember is a reusable profile. Its lifecycle is independent of
// awards: deleting a profile nulls AwardMember.MemberID but never
// touches the snapshot names stored on awards.
type TeamMember struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"not null;size:128;index"`
	Gender    string    `json:"gender" gorm:"size:10"`
	IDCard    string    `json:"id_card" gorm:"size:18"`
	Phone     string    `json:"phone" gorm:"size:20"`
	StudentID string    `json:"student_id" gorm:"size:20"`
	Email     string    `json:"email" gorm:"size:128"`
	Major     string    `json:"major" gorm:"size:128"`
	ClassName string    `json:"class_name" gorm:"size:128"`
	College   string    `json:"college" gorm:"size:128"`
	SortIndex int       `json:"sort_index" gorm:"default:0"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (TeamMember) TableName() string {
	return "team_members"
}
