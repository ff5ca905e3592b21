package models

import "time"

// RawProduct is a product object as it was found, either decoded from an
// intercepted API response or built by the DOM scraping script.
type RawProduct map[string]any

type Product struct {
	Key       string    `json:"key"`
	ProductID string    `json:"product_id,omitempty"`
	Title     string    `json:"title"`
	Price     string    `json:"price"`
	ImageURL  string    `json:"image_url"`
	Link      string    `json:"link,omitempty"`
	RoomID    string    `json:"room_id"`
	RoomName  string    `json:"room_name"`
	RoomURL   string    `json:"room_url"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// RoomContext is attached to every product saved or forwarded for a room.
type RoomContext struct {
	RoomID   string `json:"room_id"`
	RoomName string `json:"room_name"`
	RoomURL  string `json:"room_url"`
}

type Source string

const (
	SourceAPI Source = "api"
	SourceDOM Source = "dom"
)
