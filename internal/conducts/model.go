package conducts

import "time"

// Conduct is one submitted administration of the test.
type Conduct struct {
	ID        string    `gorm:"column:conduct_id;primaryKey;size:190;not null" json:"id"`
	OwnerID   string    `gorm:"column:owner_id;size:190;not null;index:idx_conducts_owner_date,priority:1" json:"ownerId"`
	Name      string    `gorm:"column:name;size:320;not null" json:"name"`
	Date      time.Time `gorm:"column:conduct_date;not null;index:idx_conducts_owner_date,priority:2" json:"date"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"-"`

	Participants []ConductParticipant `gorm:"foreignKey:ConductID;references:ID" json:"participants,omitempty"`
}

// TableName provides the explicit table binding for GORM.
func (Conduct) TableName() string {
	return "conducts"
}

// ConductParticipant is one scored participant row within a submitted
// conduct. MemberID is set when the name was resolved against the
// directory.
type ConductParticipant struct {
	ID          string `gorm:"column:participant_id;primaryKey;size:190;not null" json:"id"`
	ConductID   string `gorm:"column:conduct_id;size:190;not null;index" json:"-"`
	Position    int    `gorm:"column:position;not null" json:"position"`
	Name        string `gorm:"column:name;size:320;not null" json:"name"`
	MemberID    string `gorm:"column:member_id;size:190" json:"userId,omitempty"`
	Rank        string `gorm:"column:rank;size:32" json:"rank,omitempty"`
	PlatoonID   string `gorm:"column:platoon_id;size:64" json:"platoonId,omitempty"`
	SitupReps   int    `gorm:"column:situp_reps;not null" json:"situpReps"`
	PushupReps  int    `gorm:"column:pushup_reps;not null" json:"pushupReps"`
	RunSeconds  int    `gorm:"column:run_seconds;not null" json:"runSeconds"`
	SitupScore  int    `gorm:"column:situp_score;not null" json:"situpScore"`
	PushupScore int    `gorm:"column:pushup_score;not null" json:"pushupScore"`
	RunScore    int    `gorm:"column:run_score;not null" json:"runScore"`
	TotalScore  int    `gorm:"column:total_score;not null" json:"totalScore"`
	Award       string `gorm:"column:award;size:16;not null" json:"result"`
	Age         int    `gorm:"column:age" json:"age,omitempty"`
}

// TableName provides the explicit table binding for GORM.
func (ConductParticipant) TableName() string {
	return "conduct_participants"
}
