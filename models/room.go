package models

import "time"

type RoomState string

const (
	RoomStarting RoomState = "starting"
	RoomActive   RoomState = "active"
	RoomStopping RoomState = "stopping"
)

type RoomStats struct {
	APICaptured uint64 `json:"apiCaptured"`
	DOMCaptured uint64 `json:"domCaptured"`
	TotalSaved  uint64 `json:"totalSaved"`
	WebhookSent uint64 `json:"webhookSent"`
}

// RoomInfo is a point-in-time snapshot of a tracked room.
type RoomInfo struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	URL     string    `json:"url"`
	Status  RoomState `json:"status"`
	AddedAt time.Time `json:"addedAt"`
	Stats   RoomStats `json:"stats"`
}
