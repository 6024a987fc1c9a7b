package history

import "time"

// Row is one persisted chat message.
type Row struct {
	ID         int64     `json:"id"`
	CID        string    `json:"cid"`
	MID        string    `json:"mid"`
	Content    string    `json:"content"`
	Send       bool      `json:"send"`
	CreateTime time.Time `json:"create_time"`
}
