package models

import "time"

// Group is a directory ACL group a user was seen in.
type Group struct {
	// ID is the unique identifier for the group.
	ID uint `gorm:"primaryKey"`
	// Name is the short name shown to users (the first RDN value for DNs).
	Name string `gorm:"size:100;not null"`
	// ExternalID is the value found in the directory's group attribute.
	ExternalID string `gorm:"size:255;uniqueIndex;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TableName specifies the database table name for the Group model.
func (Group) TableName() string {
	return "groups"
}
