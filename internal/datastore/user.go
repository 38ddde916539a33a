package datastore

import (
	"github.com/swarahealth/coughwatch-go/internal/errors"
	"gorm.io/gorm"
)

var ErrUserNotFound = errors.Newf("user not found").
	Component("datastore").
	Category(errors.CategoryNotFound).
	Build()

// SaveUser inserts a new user account.
func (ds *DataStore) SaveUser(user *User) error {
	if err := ds.DB.Create(user).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "save_user").
			Build()
	}
	return nil
}

// UpdateUser persists changes to an existing user account.
func (ds *DataStore) UpdateUser(user *User) error {
	if err := ds.DB.Save(user).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "update_user").
			Build()
	}
	return nil
}

func (ds *DataStore) getUserWhere(query string, args ...any) (*User, error) {
	var user User
	err := ds.DB.Where(query, args...).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get_user").
			Build()
	}
	return &user, nil
}

// GetUser retrieves a user by id.
func (ds *DataStore) GetUser(id string) (*User, error) {
	return ds.getUserWhere("id = ?", id)
}

// GetUserByEmail retrieves a user by email address.
func (ds *DataStore) GetUserByEmail(email string) (*User, error) {
	return ds.getUserWhere("email = ?", email)
}

// GetUserByUsername retrieves a user by username.
func (ds *DataStore) GetUserByUsername(username string) (*User, error) {
	return ds.getUserWhere("username = ?", username)
}
