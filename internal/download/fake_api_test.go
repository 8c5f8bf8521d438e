package download

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/oblivionis/oblivionis-go/internal/api"
	apperrors "github.com/oblivionis/oblivionis-go/internal/errors"
	"github.com/oblivionis/oblivionis-go/internal/network"
	"github.com/oblivionis/oblivionis-go/internal/store"
)

// fakeAPI serves canned responses. Its fields must not change once a
// worker is running.
type fakeAPI struct {
	track    *api.TrackURL
	trackErr error
	lyric    *api.Lyric
	lyricErr error
	picURL   string
	picErr   error
	image    []byte
	audio    []byte
	panicMsg string

	// release, when set, holds every resolve call until it is closed
	release chan struct{}

	active    atomic.Int32
	maxActive atomic.Int32
	resolved  atomic.Int32
	lyricHits atomic.Int32
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		track: &api.TrackURL{URL: "http://media/song", Bitrate: 320},
		lyric: &api.Lyric{Original: "[00:01.00]Hello\n[00:02.00]World", Translated: "[00:01.00]你好"},
		audio: []byte{0xff, 0xfb, 0x90, 0x00, 0x00, 0x00, 0x00, 0x00},
	}
}

func (f *fakeAPI) ResolveTrackURL(ctx context.Context, source, id, bitrate string) (*api.TrackURL, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxActive.Load()
		if n <= m || f.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	f.resolved.Add(1)

	if f.release != nil {
		<-f.release
	}
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.trackErr != nil {
		return nil, f.trackErr
	}
	return f.track, nil
}

func (f *fakeAPI) Lyric(ctx context.Context, source, id string) (*api.Lyric, error) {
	f.lyricHits.Add(1)
	if f.lyricErr != nil {
		return nil, f.lyricErr
	}
	return f.lyric, nil
}

func (f *fakeAPI) ResolvePicURL(ctx context.Context, source, picID string, size int) (string, error) {
	if f.picErr != nil {
		return "", f.picErr
	}
	if f.picURL == "" {
		return "", apperrors.NewNotFoundError("cover not found")
	}
	return f.picURL, nil
}

func (f *fakeAPI) FetchImage(ctx context.Context, link string) ([]byte, string, error) {
	return f.image, "image/jpeg", nil
}

func (f *fakeAPI) Stream(ctx context.Context, link, path string, progress func(downloaded, total int64)) (*network.StreamResult, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, f.audio, 0644); err != nil {
		return nil, err
	}
	n := int64(len(f.audio))
	return &network.StreamResult{BytesWritten: n, TotalBytes: n}, nil
}

type memoryHistory struct {
	mu      sync.Mutex
	entries []*store.HistoryEntry
}

func (h *memoryHistory) Record(entry *store.HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, entry)
	return nil
}

func (h *memoryHistory) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
