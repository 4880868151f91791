package models

import "time"

// User captures application-facing fields for an authenticated identity.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	PasswordHash string    `json:"-"`
	FriendCode   string    `json:"friendCode"`
	Friends      []string  `json:"friends"`
	CreatedAt    time.Time `json:"created_at"`
}

// Profile is the public projection of a User returned by the API.
type Profile struct {
	ID         string   `json:"id"`
	Username   string   `json:"username"`
	Email      string   `json:"email"`
	Phone      string   `json:"phone"`
	FriendCode string   `json:"friendCode"`
	Friends    []string `json:"friends"`
}

// Profile projects u without its password hash.
func (u User) Profile() Profile {
	friends := make([]string, len(u.Friends))
	copy(friends, u.Friends)
	return Profile{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		Phone:      u.Phone,
		FriendCode: u.FriendCode,
		Friends:    friends,
	}
}
