// models/models.go - Core Models (TeamMember defined in member.go)
package models

import (
	"time"
)

// Award represents one competition/award certificate record.
// Soft deletion is tracked explicitly with a flag + timestamp so
// records can sit in the recycle bin and be restored.
type Award struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	CompetitionName string     `json:"competition_name" gorm:"not null;size:255;index"`
	AwardDate       time.Time  `json:"award_date" gorm:"not null;index"`
	Level           string     `json:"level" gorm:"not null;size:50;index"`
	Rank            string     `json:"rank" gorm:"not null;size:50;index"`
	CertificateCode string     `json:"certificate_code" gorm:"size:128"`
	Remarks         string     `json:"remarks" gorm:"type:text"`
	Deleted         bool       `json:"deleted" gorm:"default:false;index"`
	DeletedAt       *time.Time `json:"deleted_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	Members     []AwardMember `json:"members,omitempty" gorm:"foreignKey:AwardID"`
	Attachments []Attachment  `json:"attachments,omitempty" gorm:"foreignKey:AwardID"`
}

// AwardMember is a point-in-time member snapshot on an award.
// MemberName is authoritative: it stays valid even after the linked
// TeamMember profile is edited or deleted (MemberID goes NULL then).
type AwardMember struct {
	ID         uint        `json:"id" gorm:"primaryKey"`
	AwardID    uint        `json:"award_id" gorm:"not null;index"`
	MemberName string      `json:"member_name" gorm:"not null;size:128"`
	MemberID   *uint       `json:"member_id" gorm:"index"`
	Member     *TeamMember `json:"member,omitempty" gorm:"foreignKey:MemberID;constraint:OnDelete:SET NULL"`
	SortOrder  int         `json:"sort_order" gorm:"not null;default:0"`
}

// Attachment is the metadata row for one stored certificate file.
// RelativePath points under the active root, or under trash/ once the
// attachment is soft-deleted; never both.
type Attachment struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	AwardID      uint       `json:"award_id" gorm:"not null;index"`
	StoredName   string     `json:"stored_name" gorm:"not null;size:255"`
	OriginalName string     `json:"original_name" gorm:"not null;size:255"`
	RelativePath string     `json:"relative_path" gorm:"not null;size:255;uniqueIndex"`
	FileHash     string     `json:"file_hash" gorm:"size:64;index"`
	FileSize     int64      `json:"file_size" gorm:"default:0"`
	Deleted      bool       `json:"deleted" gorm:"default:false;index"`
	DeletedAt    *time.Time `json:"deleted_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ImportJob is an append-only audit record for one bulk import run.
type ImportJob struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	JobID     string    `json:"job_id" gorm:"size:36;uniqueIndex"`
	Filename  string    `json:"filename" gorm:"size:255"`
	Status    string    `json:"status" gorm:"size:32;default:'pending'"`
	Message   string    `json:"message" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
}

// CustomFlag defines a user-configurable boolean attribute on awards.
type CustomFlag struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Key          string    `json:"key" gorm:"not null;size:64;uniqueIndex"`
	Label        string    `json:"label" gorm:"not null;size:128"`
	DefaultValue bool      `json:"default_value" gorm:"default:false"`
	Enabled      bool      `json:"enabled" gorm:"default:true"`
	SortOrder    int       `json:"sort_order" gorm:"default:0"`
	CreatedAt    time.Time `json:"created_at"`
}

// AwardFlagValue stores one flag value for one award. Absent rows mean
// the flag's configured default applies.
type AwardFlagValue struct {
	ID      uint   `json:"id" gorm:"primaryKey"`
	AwardID uint   `json:"award_id" gorm:"not null;index:idx_award_flag,unique"`
	FlagKey string `json:"flag_key" gorm:"not null;size:64;index:idx_award_flag,unique"`
	Value   bool   `json:"value" gorm:"default:false"`
}

// Setting is a simple key/value row for runtime configuration such as
// the attachment root override.
type Setting struct {
	ID    uint   `json:"id" gorm:"primaryKey"`
	Key   string `json:"key" gorm:"not null;size:128;uniqueIndex"`
	Value string `json:"value" gorm:"size:512"`
}

// SchemaVersion records which ordered migrations have been applied.
type SchemaVersion struct {
	ID        uint      `gorm:"primaryKey"`
	Version   int       `gorm:"not null;uniqueIndex"`
	Name      string    `gorm:"size:128"`
	AppliedAt time.Time `gorm:"autoCreateTime"`
}

func (Award) TableName() string {
	return "awards"
}

func (AwardMember) TableName() string {
	return "award_members"
}

func (Attachment) TableName() string {
	return "attachments"
}

func (ImportJob) TableName() string {
	return "import_jobs"
}

func (CustomFlag) TableName() string {
	return "custom_flags"
}

func (AwardFlagValue) TableName() string {
	return "award_flag_values"
}

func (Setting) TableName() string {
	return "settings"
}

func (SchemaVersion) TableName() string {
	return "schema_versions"
}

// MemberNames returns the snapshot names in list order, for the
// presentation layer's derived member_names view.
func (a *Award) MemberNames() []string {
	names := make([]string, 0, len(a.Members))
	for _, m := range a.Members {
		names = append(names, m.MemberName)
	}
	return names
}
