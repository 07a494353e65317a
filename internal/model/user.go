package model

import (
	"strconv"
	"time"
)

// User is an account. Its decimal id names the user's partition in both
// vector indexes and in the document registry.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:64;not null;uniqueIndex" json:"username"`
	Email        string    `gorm:"size:128;not null;uniqueIndex" json:"email"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) Namespace() string {
	return strconv.FormatUint(uint64(u.ID), 10)
}
