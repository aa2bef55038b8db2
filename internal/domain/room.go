package domain

type RoomName string

// Room is the session-level meta returned by the provider on join.
type Room struct {
	Name RoomName
}
