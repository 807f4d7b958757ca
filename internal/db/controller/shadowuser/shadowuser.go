// Package shadowuser keeps the local shadow records of directory accounts.
package shadowuser

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/okupy/okupy/internal/db/models"
	"github.com/okupy/okupy/internal/identity"
)

const (
	usernameKeyQueryPattern = "username_key = ?"
)

var (
	// ErrUserNotFound is returned when no shadow record exists.
	ErrUserNotFound = errors.New("shadow user not found")
	// ErrUsernameEmpty is returned for a username that is empty after trimming.
	ErrUsernameEmpty = errors.New("username cannot be empty")
	// ErrDBNil is returned when the database connection is nil.
	ErrDBNil = errors.New("database connection is nil")
)

// GetOrCreate returns the shadow record for username, creating it on first
// login. Lookup ignores case and surrounding whitespace; the stored casing is
// the one of the first login. Directory attributes from id refresh the record.
// The boolean reports whether the record was created.
func GetOrCreate(db *gorm.DB, username string, id *identity.Identity) (*models.User, bool, error) {
	if db == nil {
		return nil, false, ErrDBNil
	}

	key := identity.Key(username)
	if key == "" {
		return nil, false, ErrUsernameEmpty
	}

	now := time.Now()

	user, err := GetByUsername(db, username)
	if err == nil {
		if errUpdate := refresh(db, user, id, now); errUpdate != nil {
			return nil, false, errUpdate
		}

		return user, false, nil
	}

	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	user = &models.User{
		Active:      true,
		Username:    identity.Normalize(username),
		UsernameKey: key,
		Password:    models.UnusablePassword,
		AuthSource:  models.AuthSourceLDAP,
	}
	apply(user, id, now)

	// a concurrent first login for the same user may win the insert
	result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(user)
	if result.Error != nil {
		return nil, false, fmt.Errorf("failed to create shadow user: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		user, err = GetByUsername(db, username)
		if err != nil {
			return nil, false, err
		}

		return user, false, nil
	}

	return user, true, nil
}

// loginColumns are the columns a login may write. active belongs to the
// account administration and is only ever read here.
var loginColumns = []string{ //nolint:gochecknoglobals
	"dn", "email", "display_name", "first_name", "last_name",
	"auth_source", "last_login_at", "password", "updated_at",
}

func refresh(db *gorm.DB, user *models.User, id *identity.Identity, now time.Time) error {
	apply(user, id, now)

	// the stored password is never anything but the unusable marker
	user.Password = models.UnusablePassword

	if err := db.Model(user).Select(loginColumns).Updates(user).Error; err != nil {
		return fmt.Errorf("failed to update shadow user: %w", err)
	}

	// a disable that landed after the first read wins
	var current models.User
	if err := db.Select("active").First(&current, user.ID).Error; err != nil {
		return fmt.Errorf("failed to reload shadow user: %w", err)
	}

	user.Active = current.Active

	return nil
}

func apply(user *models.User, id *identity.Identity, now time.Time) {
	if id == nil {
		return
	}

	user.DN = id.DN
	user.Email = id.Email
	user.DisplayName = id.DisplayName
	user.FirstName = id.FirstName
	user.LastName = id.LastName
	user.AuthSource = AuthSource(id.Source)
	user.LastLoginAt = &now
}

// AuthSource maps an identity source to the recorded auth source.
func AuthSource(source identity.Source) models.AuthSource {
	switch source {
	case identity.SourceCertificate:
		return models.AuthSourceCertificate
	case identity.SourceSSHKey:
		return models.AuthSourceSSHKey
	default:
		return models.AuthSourceLDAP
	}
}

// GetByID retrieves a shadow user by its ID.
func GetByID(db *gorm.DB, id uint64) (*models.User, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	var user models.User
	result := db.First(&user, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, result.Error
	}

	return &user, nil
}

// GetByUsername retrieves a shadow user ignoring case and surrounding whitespace.
func GetByUsername(db *gorm.DB, username string) (*models.User, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	key := identity.Key(username)
	if key == "" {
		return nil, ErrUsernameEmpty
	}

	var user models.User
	result := db.Where(usernameKeyQueryPattern, key).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, result.Error
	}

	return &user, nil
}

// Groups returns the groups recorded for a user at their last login.
func Groups(db *gorm.DB, userID uint64) ([]models.Group, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	var groups []models.Group

	err := db.Table("groups").
		Joins("JOIN user_groups ON user_groups.group_id = groups.id").
		Where("user_groups.user_id = ?", userID).
		Order("groups.name").
		Find(&groups).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get user groups: %w", err)
	}

	return groups, nil
}

// SyncGroups replaces a user's memberships with the directory groups.
func SyncGroups(db *gorm.DB, userID uint64, directoryGroups []string) error {
	if db == nil {
		return ErrDBNil
	}

	return db.Transaction(func(tx *gorm.DB) error {
		var groupIDs []uint

		seen := make(map[string]bool, len(directoryGroups))

		for _, externalID := range directoryGroups {
			if externalID == "" || seen[externalID] {
				continue
			}
			seen[externalID] = true

			var group models.Group

			err := tx.Where("external_id = ?", externalID).
				FirstOrCreate(&group, models.Group{
					Name:       GroupName(externalID),
					ExternalID: externalID,
				}).Error
			if err != nil {
				return fmt.Errorf("failed to create/get group %s: %w", externalID, err)
			}

			groupIDs = append(groupIDs, group.ID)
		}

		if err := tx.Where("user_id = ?", userID).Delete(&models.UserGroup{}).Error; err != nil {
			return fmt.Errorf("failed to remove old group memberships: %w", err)
		}

		for _, groupID := range groupIDs {
			if err := tx.Create(&models.UserGroup{
				UserID:  userID,
				GroupID: groupID,
			}).Error; err != nil {
				return fmt.Errorf("failed to add group membership: %w", err)
			}
		}

		return nil
	})
}

// GroupName returns the value of the first RDN of a group DN, or the value itself.
func GroupName(externalID string) string {
	first, _, _ := strings.Cut(externalID, ",")

	_, value, ok := strings.Cut(first, "=")
	if !ok || value == "" {
		return externalID
	}

	return value
}

// UpdateProfile copies the profile fields of id onto the shadow record of
// userID after they were written to the directory. The login bookkeeping is
// left alone.
func UpdateProfile(db *gorm.DB, userID uint64, id *identity.Identity) error {
	if db == nil {
		return ErrDBNil
	}

	result := db.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]any{
		"email":        id.Email,
		"display_name": id.DisplayName,
		"first_name":   id.FirstName,
		"last_name":    id.LastName,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to update shadow user: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// SetActive enables or disables the shadow record of userID. Disabled users
// can not log in with any credential source.
func SetActive(db *gorm.DB, userID uint64, active bool) error {
	if db == nil {
		return ErrDBNil
	}

	result := db.Model(&models.User{}).Where("id = ?", userID).Update("active", active)
	if result.Error != nil {
		return fmt.Errorf("failed to update shadow user: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// List returns one page of shadow users ordered by username, and the number
// of users matching search. search matches username, name and e-mail
// ignoring case.
func List(db *gorm.DB, search string, page, pageSize int) ([]models.User, int64, error) {
	if db == nil {
		return nil, 0, ErrDBNil
	}

	tx := db.Model(&models.User{})

	if search = strings.ToLower(strings.TrimSpace(search)); search != "" {
		like := "%" + search + "%"
		tx = tx.Where(
			"username_key LIKE ? OR LOWER(email) LIKE ? OR LOWER(display_name) LIKE ?",
			like,
			like,
			like,
		)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count shadow users: %w", err)
	}

	var users []models.User

	err := tx.Order("username_key").Limit(pageSize).Offset((page - 1) * pageSize).Find(&users).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list shadow users: %w", err)
	}

	return users, total, nil
}
