package models

import (
	"strings"
	"time"
)

// UserRole decides which API surfaces a user may call.
type UserRole string

const (
	RoleUser  UserRole = "user"  // borrower
	RoleStaff UserRole = "staff" // librarian
	RoleAdmin UserRole = "admin"
)

// UserStatus is the account state kept next to the identity provider record.
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusInactive  UserStatus = "inactive"
	UserStatusSuspended UserStatus = "suspended"
)

// User is a profile in the users collection. The document key is the Firebase Auth UID.
type User struct {
	ID        string     `json:"id" firestore:"-"`
	Name      string     `json:"name" firestore:"name"`
	Email     string     `json:"email" firestore:"email"`
	Role      UserRole   `json:"role" firestore:"role"`
	Status    UserStatus `json:"status" firestore:"status"`
	CreatedAt time.Time  `json:"createdAt" firestore:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt" firestore:"updatedAt"`
}

// IsActive reports whether the account may use the API.
func (u *User) IsActive() bool {
	return u.Status == "" || u.Status == UserStatusActive
}

// IsStaff is true for librarians and admins.
func (u *User) IsStaff() bool {
	return u.Role == RoleStaff || u.Role == RoleAdmin
}

// UserUpdate is a partial profile change made by staff.
type UserUpdate struct {
	Name   *string     `json:"name" validate:"omitempty,min=1,max=200"`
	Email  *string     `json:"email" validate:"omitempty,email"`
	Role   *UserRole   `json:"role" validate:"omitempty,oneof=user staff admin"`
	Status *UserStatus `json:"status" validate:"omitempty,oneof=active inactive suspended"`
}

// Apply copies the set fields onto user. Email is trimmed and lowercased.
func (u UserUpdate) Apply(user *User) {
	if u.Name != nil {
		user.Name = *u.Name
	}
	if u.Email != nil {
		user.Email = strings.ToLower(strings.TrimSpace(*u.Email))
	}
	if u.Role != nil {
		user.Role = *u.Role
	}
	if u.Status != nil {
		user.Status = *u.Status
	}
}
