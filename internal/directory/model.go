package directory

import "time"

// Member is one entry in the known-personnel directory.
type Member struct {
	ID          string    `gorm:"column:member_id;primaryKey;size:190;not null" json:"id"`
	FullName    string    `gorm:"column:full_name;size:320;not null" json:"fullName"`
	Rank        string    `gorm:"column:rank;size:32" json:"rank"`
	PlatoonID   string    `gorm:"column:platoon_id;size:64" json:"platoonId"`
	DateOfBirth time.Time `gorm:"column:date_of_birth" json:"dob"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"-"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime" json:"-"`
}

// TableName provides the explicit table binding for GORM.
func (Member) TableName() string {
	return "directory_members"
}
