package pipeline

import (
	"errors"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/oblivionis/oblivionis-go/internal/api"
	"github.com/oblivionis/oblivionis-go/internal/download"
	apperrors "github.com/oblivionis/oblivionis-go/internal/errors"
)

func TestSearchDiscardsStaleGeneration(t *testing.T) {
	h := newHarness(t)
	r := h.reconciler

	slow := h.searcher.hold("slow")
	r.Search(api.SearchRequest{Keyword: "slow", Source: "netease"})
	r.Search(api.SearchRequest{Keyword: "fast", Source: "netease"})

	waitFor(t, "fast results", func() bool {
		r.Tick()
		return len(h.presenter.searches) == 1
	})

	close(slow)
	waitFor(t, "slow outcome", func() bool { return len(h.queues.Search) == 1 })
	r.Tick()

	if len(h.presenter.searches) != 1 {
		t.Fatalf("Expected only the latest search to be shown, got %d", len(h.presenter.searches))
	}
	if got := h.presenter.searches[0].Keyword; got != "fast" {
		t.Errorf("Expected results for 'fast', got %q", got)
	}
	if r.Generation() != 2 {
		t.Errorf("Expected generation 2, got %d", r.Generation())
	}
}

func TestSearchFailureMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"timeout", apperrors.NewTimeoutError("search request timed out", nil), "timed out"},
		{"network", apperrors.NewStatusError(502), "Network error while searching"},
		{"unknown", errors.New("bad json"), "no response from the API"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.searcher.err = tt.err

			h.reconciler.Search(api.SearchRequest{Keyword: "x"})
			waitFor(t, "search failure", func() bool {
				h.reconciler.Tick()
				return len(h.presenter.searchErrors) == 1
			})

			if msg := h.presenter.searchErrors[0]; !strings.Contains(msg, tt.want) {
				t.Errorf("Expected message containing %q, got %q", tt.want, msg)
			}
		})
	}
}

func TestPagingRepeatsLastSearch(t *testing.T) {
	h := newHarness(t)
	r := h.reconciler

	if r.NextPage() || r.PrevPage() {
		t.Fatal("Paging without a search should do nothing")
	}

	r.Search(api.SearchRequest{Keyword: "k", Source: "netease"})
	if r.PrevPage() {
		t.Error("PrevPage on the first page should do nothing")
	}
	if !r.NextPage() {
		t.Fatal("NextPage should repeat the search")
	}
	if !r.PrevPage() {
		t.Fatal("PrevPage from page 2 should repeat the search")
	}

	waitFor(t, "three searches", func() bool { return len(h.searcher.pages()) == 3 })

	pages := h.searcher.pages()
	sort.Ints(pages)
	if !reflect.DeepEqual(pages, []int{1, 1, 2}) {
		t.Errorf("Expected pages [1 1 2], got %v", pages)
	}

	last, ok := r.LastSearch()
	if !ok || last.Page != 1 || last.Keyword != "k" {
		t.Errorf("Unexpected last search: %+v", last)
	}
	if r.Generation() != 3 {
		t.Errorf("Expected generation 3, got %d", r.Generation())
	}
}

func TestCoverShowsOnlyLatestRequest(t *testing.T) {
	h := newHarness(t)
	r := h.reconciler

	first := h.covers.hold("netease", "p1")
	r.ShowCover("netease", "p1")
	r.ShowCover("netease", "p2")

	waitFor(t, "latest cover", func() bool {
		r.Tick()
		return len(h.presenter.covers) == 1
	})

	close(first)
	waitFor(t, "stale cover outcome", func() bool { return len(h.queues.Picture) == 1 })
	r.Tick()

	if !reflect.DeepEqual(h.presenter.covers, []string{"p2"}) {
		t.Errorf("Expected only p2 to be shown, got %v", h.presenter.covers)
	}
	if h.covers.size != 800 {
		t.Errorf("Expected cover size from settings, got %d", h.covers.size)
	}
}

func TestCoverSamePicIDFromOtherSourceIsStale(t *testing.T) {
	h := newHarness(t)
	r := h.reconciler

	first := h.covers.hold("netease", "p1")
	r.ShowCover("netease", "p1")
	r.ShowCover("kuwo", "p1")

	waitFor(t, "latest cover", func() bool {
		r.Tick()
		return len(h.presenter.covers) == 1
	})

	close(first)
	waitFor(t, "stale cover outcome", func() bool { return len(h.queues.Picture) == 1 })
	r.Tick()

	if len(h.presenter.covers) != 1 {
		t.Errorf("Expected the netease cover to be discarded, shown %v", h.presenter.covers)
	}
	if got := string(h.presenter.coverData[0]); got != "http://img/kuwo/p1" {
		t.Errorf("Expected the kuwo cover, got %q", got)
	}
}

func TestCoverNotFound(t *testing.T) {
	h := newHarness(t)

	h.reconciler.ShowCover("netease", "missing")
	waitFor(t, "cover failure", func() bool {
		h.reconciler.Tick()
		return len(h.presenter.coverErrors) == 1
	})

	if h.presenter.coverErrors[0] != "Album cover not found" {
		t.Errorf("Unexpected message: %q", h.presenter.coverErrors[0])
	}

	h.reconciler.ShowCover("netease", "")
	if len(h.queues.Picture) != 0 {
		t.Error("Empty pic id should not start a worker")
	}
}

func TestDownloadBatchSucceeds(t *testing.T) {
	h := newHarness(t)
	r := h.reconciler

	if _, err := r.Download(songs("1", "2", "3")); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if h.dispatcher.MaxConcurrent() != 2 {
		t.Errorf("Expected the gate to follow settings, got %d", h.dispatcher.MaxConcurrent())
	}

	waitFor(t, "batch completion", func() bool {
		r.Tick()
		return len(h.presenter.succeeded) == 1
	})

	want := []progressCall{{1, 3, 33}, {2, 3, 66}, {3, 3, 100}}
	if !reflect.DeepEqual(h.presenter.progress, want) {
		t.Errorf("Expected progress %v, got %v", want, h.presenter.progress)
	}
	if h.presenter.succeeded[0] != 3 {
		t.Errorf("Expected success for 3 songs, got %d", h.presenter.succeeded[0])
	}
	if len(h.presenter.prompts) != 0 {
		t.Error("A clean batch should not ask to retry")
	}
}

func TestDownloadRetriesFailedJobsVerbatim(t *testing.T) {
	h := newHarness(t)
	r := h.reconciler
	h.music.fail["2"] = true
	h.music.fail["3"] = true
	h.presenter.retryAnswers = []bool{true, false}

	var snapshots []BatchCounters
	h.presenter.onConfirm = func() { snapshots = append(snapshots, r.Counters()) }

	expected := download.BuildJobs(songs("1", "2", "3"), h.settings)[1:]

	firstBatch, err := r.Download(songs("1", "2", "3"))
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}

	waitFor(t, "first retry prompt", func() bool {
		r.Tick()
		return len(h.presenter.prompts) == 1
	})

	retry := r.Counters()
	if retry.BatchID == firstBatch {
		t.Error("Retry should run under a new batch id")
	}
	if retry.Total != 2 || retry.Completed != 0 || !retry.Succeeded {
		t.Errorf("Expected counters reset for 2 jobs, got %+v", retry)
	}

	waitFor(t, "second retry prompt", func() bool {
		r.Tick()
		return len(h.presenter.prompts) == 2
	})

	for i, snap := range snapshots {
		jobs := snap.RetryJobs
		sort.Slice(jobs, func(a, b int) bool { return jobs[a].SongID < jobs[b].SongID })
		if !reflect.DeepEqual(jobs, expected) {
			t.Errorf("Prompt %d: retry jobs changed\n got: %+v\nwant: %+v", i, jobs, expected)
		}
		if len(snap.Failures) != 2 {
			t.Errorf("Prompt %d: expected 2 failures, got %d", i, len(snap.Failures))
		}
	}

	if !strings.Contains(h.presenter.prompts[0], "1 succeeded, 2 failed") {
		t.Errorf("Unexpected summary: %q", h.presenter.prompts[0])
	}

	final := r.Counters()
	if final.Total != 2 || final.Completed != 2 {
		t.Errorf("Expected finished retry batch 2/2, got %d/%d", final.Completed, final.Total)
	}
	if final.Failures != nil || final.RetryJobs != nil {
		t.Error("Declining the retry should clear the failure state")
	}

	last := h.presenter.progress[len(h.presenter.progress)-1]
	if last != (progressCall{2, 2, 100}) {
		t.Errorf("Expected final progress 2/2, got %+v", last)
	}
}

func TestDownloadDiscardsSupersededBatch(t *testing.T) {
	h := newHarness(t)
	r := h.reconciler

	r.arm("current", 2)
	h.queues.Download <- download.Outcome{BatchID: "old", SongName: "x"}
	r.Tick()

	if c := r.Counters(); c.Completed != 0 {
		t.Fatalf("Outcome of an old batch was counted: %+v", c)
	}

	h.queues.Download <- download.Outcome{BatchID: "current", SongName: "a"}
	h.queues.Download <- download.Outcome{BatchID: "current", SongName: "b"}
	h.queues.Download <- download.Outcome{BatchID: "current", SongName: "c"}
	r.Tick()
	r.Tick()
	r.Tick()

	c := r.Counters()
	if c.Completed != 2 || c.Total != 2 {
		t.Errorf("Expected completed to stop at total, got %d/%d", c.Completed, c.Total)
	}
	if len(h.presenter.succeeded) != 1 {
		t.Errorf("Expected one success notice, got %d", len(h.presenter.succeeded))
	}
}

func TestTickTakesOneItemPerQueue(t *testing.T) {
	h := newHarness(t)
	r := h.reconciler

	r.arm("b", 5)
	for i := 0; i < 3; i++ {
		h.queues.Download <- download.Outcome{BatchID: "b"}
	}

	r.Tick()
	if got := r.Counters().Completed; got != 1 {
		t.Errorf("Expected one outcome per tick, got %d", got)
	}
	if len(h.queues.Download) != 2 {
		t.Errorf("Expected 2 outcomes left, got %d", len(h.queues.Download))
	}
}

func TestDownloadRejectsEmptyAndInvalid(t *testing.T) {
	h := newHarness(t)

	if _, err := h.reconciler.Download(nil); err == nil {
		t.Error("Expected error for empty selection")
	}

	h.settings.Bitrate = "64"
	if _, err := h.reconciler.Download(songs("1")); err == nil {
		t.Error("Expected error for invalid settings")
	}
}
