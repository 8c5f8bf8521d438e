package api

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// ParseSongs normalizes a search or playlist response body into song
// records. A JSON array is the common song list; an object carrying a
// "playlist" key is flattened from its nested track shape. Anything else
// is rejected.
func ParseSongs(body []byte, source string) ([]SongRecord, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid search response json")
	}

	root := gjson.ParseBytes(body)
	switch {
	case root.IsArray():
		var songs []SongRecord
		if err := json.Unmarshal(body, &songs); err != nil {
			return nil, fmt.Errorf("failed to decode song list: %w", err)
		}
		for i := range songs {
			if songs[i].Source == "" {
				songs[i].Source = source
			}
		}
		return songs, nil
	case root.IsObject() && root.Get("playlist").Exists():
		return normalizePlaylist(root.Get("playlist"), source), nil
	default:
		return nil, fmt.Errorf("unexpected search response shape")
	}
}

func normalizePlaylist(playlist gjson.Result, source string) []SongRecord {
	songs := make([]SongRecord, 0)

	playlist.Get("tracks").ForEach(func(_, track gjson.Result) bool {
		id := track.Get("id")
		if !id.Exists() || id.Type == gjson.Null {
			return true
		}

		var artists Artists
		track.Get("ar").ForEach(func(_, ar gjson.Result) bool {
			if name := ar.Get("name").String(); name != "" {
				artists = append(artists, name)
			}
			return true
		})

		name := UnknownTitle
		if n := track.Get("name"); n.Exists() {
			name = n.String()
		}

		album := UnknownAlbum
		if al := track.Get("al.name"); al.Exists() {
			album = al.String()
		}

		songID := FlexibleID(id.String())
		songs = append(songs, SongRecord{
			ID:      songID,
			Name:    name,
			Artist:  artists,
			Album:   album,
			Source:  source,
			PicID:   FlexibleID(track.Get("al.pic").String()),
			URLID:   songID,
			LyricID: songID,
		})
		return true
	})

	return songs
}
