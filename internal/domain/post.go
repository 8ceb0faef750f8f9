package domain

import "time"

// PhotoVariant is one size rendition of a channel photo. Telegram delivers
// several variants per photo, ordered smallest to largest.
type PhotoVariant struct {
	FileID   string
	Width    int
	Height   int
	FileSize int64
}

// ChannelPost is a single post received from a source channel.
type ChannelPost struct {
	MessageID int
	ChatID    int64
	ChatTitle string
	Text      string
	Caption   string
	Photo     []PhotoVariant // size variants, largest last
	Timestamp time.Time
}

func (p ChannelPost) HasText() bool { return p.Text != "" }

func (p ChannelPost) HasPhoto() bool { return len(p.Photo) > 0 }

// LargestPhoto returns the highest-resolution variant of the post's photo.
func (p ChannelPost) LargestPhoto() (PhotoVariant, bool) {
	if len(p.Photo) == 0 {
		return PhotoVariant{}, false
	}
	return p.Photo[len(p.Photo)-1], true
}
