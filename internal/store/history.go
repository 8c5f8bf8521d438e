package store

import (
	"database/sql"
	"fmt"
	"time"
)

// HistoryEntry is one completed download
type HistoryEntry struct {
	ID           int64     `json:"id"`
	SongID       string    `json:"song_id"`
	Source       string    `json:"source"`
	Title        string    `json:"title"`
	Artist       string    `json:"artist"`
	Album        string    `json:"album"`
	FilePath     string    `json:"file_path"`
	Format       string    `json:"format"`
	Bytes        int64     `json:"bytes"`
	DownloadedAt time.Time `json:"downloaded_at"`
}

// HistoryStore records completed downloads
type HistoryStore struct {
	db *sql.DB
}

// NewHistoryStore creates a new HistoryStore
func NewHistoryStore(db *sql.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// Record appends entry to the history. It is safe for concurrent use.
func (hs *HistoryStore) Record(entry *HistoryEntry) error {
	if entry.DownloadedAt.IsZero() {
		entry.DownloadedAt = time.Now()
	}

	result, err := hs.db.Exec(`
		INSERT INTO download_history (
			song_id, source, title, artist, album, file_path, format, bytes, downloaded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.SongID,
		entry.Source,
		entry.Title,
		entry.Artist,
		entry.Album,
		entry.FilePath,
		entry.Format,
		entry.Bytes,
		entry.DownloadedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record download: %w", err)
	}

	entry.ID, _ = result.LastInsertId()
	return nil
}

// Recent returns up to limit entries, newest first
func (hs *HistoryStore) Recent(limit int) ([]*HistoryEntry, error) {
	rows, err := hs.db.Query(`
		SELECT id, song_id, source, title, artist, album, file_path, format, bytes, downloaded_at
		FROM download_history
		ORDER BY downloaded_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []*HistoryEntry
	for rows.Next() {
		entry := &HistoryEntry{}
		var artist, album sql.NullString
		if err := rows.Scan(
			&entry.ID,
			&entry.SongID,
			&entry.Source,
			&entry.Title,
			&artist,
			&album,
			&entry.FilePath,
			&entry.Format,
			&entry.Bytes,
			&entry.DownloadedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entry.Artist = artist.String
		entry.Album = album.String
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// Count returns how many times a song was downloaded
func (hs *HistoryStore) Count(source, songID string) (int, error) {
	var n int
	err := hs.db.QueryRow(
		"SELECT COUNT(*) FROM download_history WHERE source = ? AND song_id = ?",
		source, songID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}
	return n, nil
}
