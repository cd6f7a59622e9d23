package model

import "time"

type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	FirstName string    `json:"first_name"`
	Age       int       `json:"age"`
	Gender    string    `json:"gender"`
	Bio       string    `json:"bio"`
	Photos    []string  `json:"photos"`
	Location  *Location `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
