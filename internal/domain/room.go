package domain

// Room: запись каталога комнат. UsersCount вычисляется по живым соединениям релея.
type Room struct {
	ID         int64  `json:"id" db:"id"`
	RoomID     string `json:"room_id" db:"room_id"`
	UsersCount int    `json:"users_count" db:"users_count"`
}
