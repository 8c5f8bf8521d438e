package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/oblivionis/oblivionis-go/internal/api"
	"github.com/oblivionis/oblivionis-go/internal/config"
	"github.com/oblivionis/oblivionis-go/internal/metadata"
)

// Console renders reconciled state as text and answers retry prompts from
// the shared input lines.
type Console struct {
	ctx     context.Context
	out     io.Writer
	answers <-chan string

	songs   []api.SongRecord
	request api.SearchRequest

	// downloaded marks results already in the download history
	downloaded func(api.SongRecord) bool
}

// NewConsole creates a console writing to out. Prompts give up when ctx
// is done.
func NewConsole(ctx context.Context, out io.Writer, answers <-chan string) *Console {
	return &Console{ctx: ctx, out: out, answers: answers}
}

// Songs returns the result list currently shown
func (c *Console) Songs() []api.SongRecord {
	return c.songs
}

// Greet prints the banner and active settings
func (c *Console) Greet(cfg *config.Config) {
	fmt.Fprintln(c.out, "oblivionis: type 'help' for commands")
	c.PrintSettings(cfg)
}

// PrintSettings prints the download settings a new batch would capture
func (c *Console) PrintSettings(cfg *config.Config) {
	d := cfg.Download
	fmt.Fprintf(c.out, "source=%s bitrate=%s cover_size=%d lyric_mode=%s numbering_mode=%s max_concurrent=%d\n",
		cfg.API.DefaultSource, d.Bitrate, d.CoverSize, d.LyricMode, d.NumberingMode, d.MaxConcurrent)
	fmt.Fprintf(c.out, "music_dir=%s lyric_dir=%s\n", d.MusicDir, d.LyricDir)
}

func (c *Console) ShowSongs(songs []api.SongRecord, req api.SearchRequest) {
	c.songs = songs
	c.request = req

	if len(songs) == 0 {
		fmt.Fprintf(c.out, "No results for '%s' (page %d)\n", req.Keyword, req.Page)
		return
	}

	fmt.Fprintf(c.out, "Results for '%s' on %s, page %d:\n", req.Keyword, req.Source, req.Page)
	for i, s := range songs {
		mark := ""
		if c.downloaded != nil && c.downloaded(s) {
			mark = " *"
		}
		fmt.Fprintf(c.out, "%3d. %s - %s [%s]%s\n", i+1, s.Name, s.Artist.Join(", "), s.Album, mark)
	}
}

func (c *Console) SearchFailed(message string) {
	fmt.Fprintf(c.out, "[ERROR] %s\n", message)
}

func (c *Console) ShowCover(picID string, data []byte, mime string) {
	if w, h, ok := metadata.ImageSize(data); ok {
		fmt.Fprintf(c.out, "Cover %s: %s %dx%d, %d bytes\n", picID, mime, w, h, len(data))
		return
	}
	fmt.Fprintf(c.out, "Cover %s: %s, %d bytes\n", picID, mime, len(data))
}

func (c *Console) CoverFailed(message string) {
	fmt.Fprintf(c.out, "[ERROR] %s\n", message)
}

func (c *Console) Progress(completed, total, percent int) {
	fmt.Fprintf(c.out, "Downloading: %d/%d (%d%%)\n", completed, total, percent)
}

func (c *Console) BatchSucceeded(total int) {
	fmt.Fprintf(c.out, "All %d songs downloaded\n", total)
}

func (c *Console) ConfirmRetry(summary string) bool {
	fmt.Fprintf(c.out, "%s [y/N] ", summary)

	var answer string
	select {
	case <-c.ctx.Done():
		fmt.Fprintln(c.out)
		return false
	case line, ok := <-c.answers:
		if !ok {
			fmt.Fprintln(c.out)
			return false
		}
		answer = line
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
