package domain

import "time"

// GridCell: координата, выровненная по сетке холста.
type GridCell struct {
	X int `json:"x" cbor:"x"`
	Y int `json:"y" cbor:"y"`
}

// Artifact: размещённое на холсте изображение. После вставки не меняется:
// исправление = remove + insert с новым id.
type Artifact struct {
	ID        string    `json:"id" cbor:"id"`
	Prompt    string    `json:"prompt" cbor:"prompt"`
	ImageURL  string    `json:"imgURL" cbor:"imgURL"`
	Position  GridCell  `json:"position" cbor:"position"`
	CreatedAt time.Time `json:"date" cbor:"date"`
	Room      string    `json:"room" cbor:"room"`
}
