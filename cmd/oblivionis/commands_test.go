package main

import (
	"bytes"
	"context"
	"io"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/oblivionis/oblivionis-go/internal/api"
	"github.com/oblivionis/oblivionis-go/internal/config"
)

func TestParseSelection(t *testing.T) {
	tests := []struct {
		name    string
		sel     string
		n       int
		want    []int
		wantErr bool
	}{
		{"single", "2", 5, []int{1}, false},
		{"list and range", "1, 3-4", 5, []int{0, 2, 3}, false},
		{"duplicates collapse", "2,1-3", 5, []int{1, 0, 2}, false},
		{"all", "ALL", 3, []int{0, 1, 2}, false},
		{"out of range", "6", 5, nil, true},
		{"reversed range", "4-2", 5, nil, true},
		{"garbage", "x", 5, nil, true},
		{"empty", "", 5, nil, true},
		{"no results", "1", 0, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSelection(tt.sel, tt.n)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSelection(%q) error = %v, wantErr %v", tt.sel, err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseSelection(%q) = %v, want %v", tt.sel, got, tt.want)
			}
		})
	}
}

func TestParseCommand(t *testing.T) {
	name, arg := parseCommand("  Search   hello world ")
	if name != "search" || arg != "hello world" {
		t.Errorf("got (%q, %q)", name, arg)
	}

	name, arg = parseCommand("next")
	if name != "next" || arg != "" {
		t.Errorf("got (%q, %q)", name, arg)
	}
}

func validDownloadConfig() config.DownloadConfig {
	return config.DownloadConfig{
		Bitrate:       "320",
		CoverSize:     500,
		LyricMode:     config.LyricModeEmbed,
		NumberingMode: config.NumberingNone,
		MaxConcurrent: 3,
		MusicDir:      "/music",
	}
}

func TestApplySetting(t *testing.T) {
	d, err := applySetting(validDownloadConfig(), "max_concurrent", "5")
	if err != nil {
		t.Fatalf("applySetting failed: %v", err)
	}
	if d.MaxConcurrent != 5 {
		t.Errorf("Expected 5, got %d", d.MaxConcurrent)
	}

	invalid := []struct{ key, value string }{
		{"max_concurrent", "9"},
		{"bitrate", "64"},
		{"cover_size", "big"},
		{"lyric_mode", "file"}, // needs a lyric dir
		{"volume", "11"},
	}
	for _, tt := range invalid {
		if _, err := applySetting(validDownloadConfig(), tt.key, tt.value); err == nil {
			t.Errorf("Expected error for %s=%s", tt.key, tt.value)
		}
	}
}

func TestConsoleConfirmRetry(t *testing.T) {
	answers := make(chan string, 3)
	answers <- "Y"
	answers <- "no"
	answers <- ""

	var out bytes.Buffer
	c := NewConsole(context.Background(), &out, answers)

	if !c.ConfirmRetry("summary") {
		t.Error("Expected 'Y' to confirm")
	}
	if c.ConfirmRetry("summary") {
		t.Error("Expected 'no' to decline")
	}
	if c.ConfirmRetry("summary") {
		t.Error("Expected empty answer to decline")
	}

	close(answers)
	if c.ConfirmRetry("summary") {
		t.Error("Expected closed input to decline")
	}
	if !strings.Contains(out.String(), "summary [y/N]") {
		t.Errorf("Prompt not written: %q", out.String())
	}
}

func TestConsoleConfirmRetryCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := NewConsole(ctx, io.Discard, make(chan string))

	answered := make(chan bool, 1)
	go func() {
		answered <- c.ConfirmRetry("summary")
	}()

	cancel()
	select {
	case got := <-answered:
		if got {
			t.Error("Expected cancellation to decline")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ConfirmRetry still blocked after cancellation")
	}
}

func TestConsoleShowSongs(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(context.Background(), &out, nil)

	songs := []api.SongRecord{{Name: "Song", Artist: api.Artists{"A", "B"}, Album: "Album"}}
	c.ShowSongs(songs, api.SearchRequest{Keyword: "k", Source: "netease", Page: 2})

	if len(c.Songs()) != 1 {
		t.Fatal("Songs not retained")
	}
	if !strings.Contains(out.String(), "  1. Song - A, B [Album]") {
		t.Errorf("Unexpected output: %q", out.String())
	}
}

func TestConsoleMarksDownloadedSongs(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(context.Background(), &out, nil)
	c.downloaded = func(s api.SongRecord) bool { return s.ID == "2" }

	c.ShowSongs([]api.SongRecord{
		{ID: "1", Name: "New", Album: "A"},
		{ID: "2", Name: "Old", Album: "B"},
	}, api.SearchRequest{Keyword: "k", Page: 1})

	if strings.Contains(out.String(), "[A] *") {
		t.Error("New song marked as downloaded")
	}
	if !strings.Contains(out.String(), "[B] *") {
		t.Errorf("Downloaded song not marked: %q", out.String())
	}
}
