package models

import "time"

// User is the profile record owned by the identity provider. The engine only reads it,
// except for the points total and tier which the behavior tracker maintains.
type User struct {
	ID           string    `bson:"_id" json:"id"`
	FirstName    string    `bson:"first_name" json:"first_name"`
	Email        string    `bson:"email" json:"email"`
	Role         string    `bson:"role" json:"role"`
	SkinType     string    `bson:"skin_type,omitempty" json:"skin_type,omitempty"`
	SkinConcerns []string  `bson:"skin_concerns,omitempty" json:"skin_concerns,omitempty"`
	TotalPoints  int       `bson:"total_points" json:"total_points"`
	Tier         string    `bson:"tier" json:"tier"`
	LastActiveAt time.Time `bson:"last_active_at,omitempty" json:"last_active_at,omitempty"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
}

// DisplayName is the value used for the {firstName} placeholder.
func (u *User) DisplayName() string {
	if u == nil || u.FirstName == "" {
		return "there"
	}
	return u.FirstName
}
