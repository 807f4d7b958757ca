package models

import "time"

// UserGroup links a shadow user to the directory groups of their last login.
// Memberships are replaced on every directory-backed login.
type UserGroup struct {
	UserID  uint64 `gorm:"primaryKey;column:user_id"`
	GroupID uint   `gorm:"primaryKey;column:group_id"`
	// User is removed together with its memberships.
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	// Group is removed together with its memberships.
	Group     Group `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
}

// TableName specifies the database table name for the UserGroup model.
func (UserGroup) TableName() string {
	return "user_groups"
}
