package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/oblivionis/oblivionis-go/internal/api"
	"github.com/oblivionis/oblivionis-go/internal/config"
	"github.com/oblivionis/oblivionis-go/internal/download"
	apperrors "github.com/oblivionis/oblivionis-go/internal/errors"
	"github.com/oblivionis/oblivionis-go/internal/network"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// fakeSearcher answers every keyword with one song named after it. Held
// keywords block until released.
type fakeSearcher struct {
	mu       sync.Mutex
	held     map[string]chan struct{}
	requests []api.SearchRequest
	err      error
}

func newFakeSearcher() *fakeSearcher {
	return &fakeSearcher{held: make(map[string]chan struct{})}
}

func (f *fakeSearcher) hold(keyword string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.held[keyword] = ch
	return ch
}

func (f *fakeSearcher) Search(ctx context.Context, req api.SearchRequest) ([]api.SongRecord, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	ch := f.held[req.Keyword]
	err := f.err
	f.mu.Unlock()

	if ch != nil {
		<-ch
	}
	if err != nil {
		return nil, err
	}
	return []api.SongRecord{{ID: "1", Name: req.Keyword, Source: req.Source}}, nil
}

func (f *fakeSearcher) pages() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	pages := make([]int, len(f.requests))
	for i, req := range f.requests {
		pages[i] = req.Page
	}
	return pages
}

// fakeCovers serves the source and pic id as image bytes. Held covers
// block until released.
type fakeCovers struct {
	mu   sync.Mutex
	held map[string]chan struct{}
	size int
}

func newFakeCovers() *fakeCovers {
	return &fakeCovers{held: make(map[string]chan struct{})}
}

func (f *fakeCovers) hold(source, picID string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.held[source+"/"+picID] = ch
	return ch
}

func (f *fakeCovers) ResolvePicURL(ctx context.Context, source, picID string, size int) (string, error) {
	f.mu.Lock()
	ch := f.held[source+"/"+picID]
	f.size = size
	f.mu.Unlock()

	if ch != nil {
		<-ch
	}
	if picID == "missing" {
		return "", apperrors.NewNotFoundError("cover not found")
	}
	return "http://img/" + source + "/" + picID, nil
}

func (f *fakeCovers) FetchImage(ctx context.Context, link string) ([]byte, string, error) {
	return []byte(link), "image/jpeg", nil
}

// fakeMusic fails every song id in fail with a missing link and streams a
// tiny mp3 frame for the rest.
type fakeMusic struct {
	fail map[string]bool
}

func (f *fakeMusic) ResolveTrackURL(ctx context.Context, source, id, bitrate string) (*api.TrackURL, error) {
	if f.fail[id] {
		return nil, apperrors.NewNotFoundError("no download link")
	}
	return &api.TrackURL{URL: "http://media/" + id, Bitrate: 320}, nil
}

func (f *fakeMusic) Lyric(ctx context.Context, source, id string) (*api.Lyric, error) {
	return &api.Lyric{}, nil
}

func (f *fakeMusic) ResolvePicURL(ctx context.Context, source, picID string, size int) (string, error) {
	return "", apperrors.NewNotFoundError("cover not found")
}

func (f *fakeMusic) FetchImage(ctx context.Context, link string) ([]byte, string, error) {
	return nil, "", apperrors.NewNotFoundError("cover not found")
}

func (f *fakeMusic) Stream(ctx context.Context, link, path string, progress func(downloaded, total int64)) (*network.StreamResult, error) {
	audio := []byte{0xff, 0xfb, 0x90, 0x00, 0x00, 0x00, 0x00, 0x00}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, audio, 0644); err != nil {
		return nil, err
	}
	return &network.StreamResult{BytesWritten: int64(len(audio)), TotalBytes: int64(len(audio))}, nil
}

type progressCall struct {
	completed, total, percent int
}

// recordingPresenter records every call. retryAnswers are consumed in
// order; once exhausted ConfirmRetry answers no.
type recordingPresenter struct {
	searches     []api.SearchRequest
	searchErrors []string
	covers       []string
	coverData    [][]byte
	coverErrors  []string
	progress     []progressCall
	succeeded    []int
	prompts      []string
	retryAnswers []bool
	onConfirm    func()
}

func (p *recordingPresenter) ShowSongs(songs []api.SongRecord, req api.SearchRequest) {
	p.searches = append(p.searches, req)
}

func (p *recordingPresenter) SearchFailed(message string) {
	p.searchErrors = append(p.searchErrors, message)
}

func (p *recordingPresenter) ShowCover(picID string, data []byte, mime string) {
	p.covers = append(p.covers, picID)
	p.coverData = append(p.coverData, data)
}

func (p *recordingPresenter) CoverFailed(message string) {
	p.coverErrors = append(p.coverErrors, message)
}

func (p *recordingPresenter) Progress(completed, total, percent int) {
	p.progress = append(p.progress, progressCall{completed, total, percent})
}

func (p *recordingPresenter) BatchSucceeded(total int) {
	p.succeeded = append(p.succeeded, total)
}

func (p *recordingPresenter) ConfirmRetry(summary string) bool {
	p.prompts = append(p.prompts, summary)
	if p.onConfirm != nil {
		p.onConfirm()
	}
	if len(p.retryAnswers) == 0 {
		return false
	}
	answer := p.retryAnswers[0]
	p.retryAnswers = p.retryAnswers[1:]
	return answer
}

type harness struct {
	reconciler *Reconciler
	queues     *Queues
	searcher   *fakeSearcher
	covers     *fakeCovers
	music      *fakeMusic
	presenter  *recordingPresenter
	dispatcher *download.Dispatcher
	settings   config.DownloadConfig
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		queues:    NewQueues(),
		searcher:  newFakeSearcher(),
		covers:    newFakeCovers(),
		music:     &fakeMusic{fail: make(map[string]bool)},
		presenter: &recordingPresenter{},
		settings: config.DownloadConfig{
			Bitrate:       "320",
			CoverSize:     800,
			LyricMode:     config.LyricModeNone,
			NumberingMode: config.NumberingFilename,
			MaxConcurrent: 2,
			MusicDir:      t.TempDir(),
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h.dispatcher = download.NewDispatcher(ctx, download.NewWorker(h.music, nil, nil), 1, h.queues.Download, nil)
	t.Cleanup(h.dispatcher.Wait)

	h.reconciler = NewReconciler(ctx, Deps{
		Searcher:   h.searcher,
		Covers:     h.covers,
		Dispatcher: h.dispatcher,
		Queues:     h.queues,
		Presenter:  h.presenter,
		Settings:   func() config.DownloadConfig { return h.settings },
	})
	return h
}

func songs(ids ...string) []api.SongRecord {
	out := make([]api.SongRecord, len(ids))
	for i, id := range ids {
		out[i] = api.SongRecord{
			ID:     api.FlexibleID(id),
			Name:   "Song " + id,
			Artist: api.Artists{"Artist"},
			Album:  "Album",
			Source: "netease",
		}
	}
	return out
}
