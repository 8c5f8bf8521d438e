package api

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SearchKind selects which catalog a search runs against
type SearchKind string

const (
	KindTrack    SearchKind = "track"
	KindAlbum    SearchKind = "album"
	KindPlaylist SearchKind = "playlist"
)

// Placeholders used when a playlist track omits its name or album
const (
	UnknownTitle = "Unknown Title"
	UnknownAlbum = "Unknown Album"
)

// SearchRequest describes one search or playlist lookup
type SearchRequest struct {
	Keyword string
	Source  string
	Kind    SearchKind
	Page    int
	Count   int
}

// SongRecord is the common song shape every search response is
// normalized into. IDs are only unique within Source.
type SongRecord struct {
	ID      FlexibleID `json:"id"`
	Name    string     `json:"name"`
	Artist  Artists    `json:"artist"`
	Album   string     `json:"album"`
	Source  string     `json:"source"`
	PicID   FlexibleID `json:"pic_id"`
	URLID   FlexibleID `json:"url_id"`
	LyricID FlexibleID `json:"lyric_id"`
}

// TrackURL is the resolved stream location for one song
type TrackURL struct {
	URL     string
	Bitrate int
	SizeKB  int64
}

// Lyric holds the original and translated LRC text of a song
type Lyric struct {
	Original   string
	Translated string
}

// Artists unmarshals from a single name, a list of names, or null
type Artists []string

// UnmarshalJSON implements custom unmarshaling for Artists
func (a *Artists) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*a = list
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*a = nil
		} else {
			*a = Artists{single}
		}
		return nil
	}

	return fmt.Errorf("artist must be a string or a list of strings")
}

// Join returns the names joined by sep
func (a Artists) Join(sep string) string {
	return strings.Join(a, sep)
}

// FlexibleID is a type that can unmarshal from both string and number JSON values
type FlexibleID string

// UnmarshalJSON implements custom unmarshaling for FlexibleID
func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexibleID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexibleID(n.String())
		return nil
	}

	return fmt.Errorf("FlexibleID must be a string or number")
}

// String returns the string representation
func (f FlexibleID) String() string {
	return string(f)
}

