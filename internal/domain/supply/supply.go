package supply

import (
	"errors"
	"time"
)

var ErrUnknownItems = errors.New("no matching supply items")

// Category groups items into kiosk sections ("Break Room", "Storage Closet").
// Key is the stable machine name ("break", "closet").
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Key  string `json:"key"`
}

type Item struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ImageURL     string `json:"image,omitempty"`
	CategoryKey  string `json:"categoryKey"`
	CategoryName string `json:"categoryName"`
}

type Request struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	FullName    string    `json:"fullName"`
	Email       string    `json:"email"`
	ItemNames   []string  `json:"items"`
	RequestedAt time.Time `json:"requestedAt"`
}

type CreateRequest struct {
	ItemIDs []string `json:"items" binding:"required,min=1,dive,uuid4"`

	// filled from the authenticated session
	UserID   string `json:"-"`
	FullName string `json:"-"`
	Email    string `json:"-"`
}

// PopularItem is one row of the per-category leaderboard.
type PopularItem struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}
