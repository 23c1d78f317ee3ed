package room

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("room not found")

type Room struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Capacity int      `json:"capacity"`
	Features []string `json:"features"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type CreateRequest struct {
	Name     string   `json:"name" binding:"required,min=2,max=120"`
	Capacity int      `json:"capacity" binding:"required,min=1,max=500"`
	Features []string `json:"features" binding:"omitempty,dive,min=1,max=60"`
}

type UpdateRequest struct {
	Name     string   `json:"name" binding:"required,min=2,max=120"`
	Capacity int      `json:"capacity" binding:"required,min=1,max=500"`
	Features []string `json:"features" binding:"omitempty,dive,min=1,max=60"`
}
