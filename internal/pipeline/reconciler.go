package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/oblivionis/oblivionis-go/internal/api"
	"github.com/oblivionis/oblivionis-go/internal/config"
	"github.com/oblivionis/oblivionis-go/internal/download"
	apperrors "github.com/oblivionis/oblivionis-go/internal/errors"
	"github.com/oblivionis/oblivionis-go/internal/monitoring"
)

// TickInterval is how often the reconciler drains its queues
const TickInterval = 100 * time.Millisecond

// Presenter renders reconciled state. All calls happen on the goroutine
// that drives Tick.
type Presenter interface {
	ShowSongs(songs []api.SongRecord, req api.SearchRequest)
	SearchFailed(message string)
	ShowCover(picID string, data []byte, mime string)
	CoverFailed(message string)
	Progress(completed, total, percent int)
	BatchSucceeded(total int)
	// ConfirmRetry blocks until the user answers. True re-dispatches the
	// failed jobs of the finished batch.
	ConfirmRetry(summary string) bool
}

// SettingsSource returns the live download settings
type SettingsSource func() config.DownloadConfig

// BatchCounters track the active download batch
type BatchCounters struct {
	BatchID   string
	Total     int
	Completed int
	Succeeded bool
	Failures  []string
	RetryJobs []download.Job
}

// Done reports whether every job of the batch has reported
func (c BatchCounters) Done() bool {
	return c.Total > 0 && c.Completed >= c.Total
}

// Percent returns integer completion percentage
func (c BatchCounters) Percent() int {
	if c.Total == 0 {
		return 0
	}
	return c.Completed * 100 / c.Total
}

// Deps bundles the collaborators of a Reconciler
type Deps struct {
	Searcher   Searcher
	Covers     CoverFetcher
	Dispatcher *download.Dispatcher
	Queues     *Queues
	Presenter  Presenter
	Settings   SettingsSource
	Logger     *zap.Logger
}

// Reconciler owns all UI-facing state. Workers only reach it through the
// queues, and every method must be called from the goroutine that ticks.
type Reconciler struct {
	ctx        context.Context
	searcher   Searcher
	covers     CoverFetcher
	dispatcher *download.Dispatcher
	queues     *Queues
	presenter  Presenter
	settings   SettingsSource
	logger     *zap.Logger

	generation uint64
	lastSearch *api.SearchRequest
	latestPic  coverKey
	counters   BatchCounters
}

// coverKey identifies a cover request. Pic ids are unique only within a
// source.
type coverKey struct {
	source string
	picID  string
}

// NewReconciler creates a reconciler. ctx bounds every worker it starts.
func NewReconciler(ctx context.Context, deps Deps) *Reconciler {
	return &Reconciler{
		ctx:        ctx,
		searcher:   deps.Searcher,
		covers:     deps.Covers,
		dispatcher: deps.Dispatcher,
		queues:     deps.Queues,
		presenter:  deps.Presenter,
		settings:   deps.Settings,
		logger:     monitoring.Named(deps.Logger, "reconciler"),
	}
}

// InputHandler handles one line of user input and reports whether the
// session should end
type InputHandler func(line string) (quit bool)

// Run ticks every TickInterval and hands every line of input to handle, all
// on the calling goroutine. It returns when ctx is done, input is closed or
// handle asks to quit. A nil input only ticks.
func (r *Reconciler) Run(ctx context.Context, input <-chan string, handle InputHandler) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Tick()
		case line, ok := <-input:
			if !ok || handle(line) {
				return
			}
		}
	}
}

// Tick takes at most one pending item from each queue without blocking
func (r *Reconciler) Tick() {
	select {
	case out := <-r.queues.Search:
		r.applySearch(out)
	default:
	}

	select {
	case out := <-r.queues.Picture:
		r.applyPicture(out)
	default:
	}

	select {
	case out := <-r.queues.Download:
		r.applyDownload(out)
	default:
	}
}

// Search starts a new search. Results of every earlier search still in
// flight become stale.
func (r *Reconciler) Search(req api.SearchRequest) uint64 {
	if req.Page < 1 {
		req.Page = 1
	}

	r.generation++
	generation := r.generation
	stored := req
	r.lastSearch = &stored

	r.logger.Debug("Starting search",
		zap.String("keyword", req.Keyword),
		zap.String("source", req.Source),
		zap.Int("page", req.Page),
		zap.Uint64("generation", generation))

	go RunSearch(r.ctx, r.searcher, req, generation, r.queues.Search)
	return generation
}

// NextPage repeats the last search one page further
func (r *Reconciler) NextPage() bool {
	if r.lastSearch == nil {
		return false
	}
	req := *r.lastSearch
	req.Page++
	r.Search(req)
	return true
}

// PrevPage repeats the last search one page back. It does nothing on the
// first page.
func (r *Reconciler) PrevPage() bool {
	if r.lastSearch == nil || r.lastSearch.Page <= 1 {
		return false
	}
	req := *r.lastSearch
	req.Page--
	r.Search(req)
	return true
}

// Generation returns the current search generation
func (r *Reconciler) Generation() uint64 {
	return r.generation
}

// LastSearch returns the most recent search request, if any
func (r *Reconciler) LastSearch() (api.SearchRequest, bool) {
	if r.lastSearch == nil {
		return api.SearchRequest{}, false
	}
	return *r.lastSearch, true
}

// ShowCover loads the cover of picID. Only the latest request is shown.
func (r *Reconciler) ShowCover(source, picID string) {
	if picID == "" {
		return
	}
	r.latestPic = coverKey{source: source, picID: picID}
	size := r.settings().CoverSize

	go RunPicture(r.ctx, r.covers, source, picID, size, r.queues.Picture)
}

// Download dispatches one job per song, captured from the current
// settings. A changed concurrency limit takes effect with this batch.
func (r *Reconciler) Download(songs []api.SongRecord) (string, error) {
	if len(songs) == 0 {
		return "", fmt.Errorf("no songs selected")
	}

	settings := r.settings().Snapshot()
	if err := settings.Validate(); err != nil {
		return "", err
	}
	if settings.MaxConcurrent != r.dispatcher.MaxConcurrent() {
		r.dispatcher.SetMaxConcurrent(settings.MaxConcurrent)
	}

	return r.dispatch(download.BuildJobs(songs, settings)), nil
}

// Counters returns a copy of the active batch counters
func (r *Reconciler) Counters() BatchCounters {
	c := r.counters
	c.Failures = append([]string(nil), c.Failures...)
	c.RetryJobs = append([]download.Job(nil), c.RetryJobs...)
	return c
}

func (r *Reconciler) dispatch(jobs []download.Job) string {
	return r.dispatcher.Dispatch(jobs, r.arm)
}

func (r *Reconciler) arm(batchID string, total int) {
	r.counters = BatchCounters{
		BatchID:   batchID,
		Total:     total,
		Succeeded: true,
	}
}

func (r *Reconciler) applySearch(out SearchOutcome) {
	if out.Generation != r.generation {
		monitoring.RecordStaleResult("search")
		r.logger.Debug("Discarding stale search result",
			zap.Uint64("generation", out.Generation),
			zap.Uint64("current", r.generation))
		return
	}

	if out.Err != nil {
		r.presenter.SearchFailed(out.Message)
		return
	}
	r.presenter.ShowSongs(out.Songs, out.Request)
}

func (r *Reconciler) applyPicture(out PictureOutcome) {
	if (coverKey{source: out.Source, picID: out.PicID}) != r.latestPic {
		monitoring.RecordStaleResult("picture")
		return
	}

	if out.Err != nil {
		r.presenter.CoverFailed(out.Message)
		return
	}
	r.presenter.ShowCover(out.PicID, out.Data, out.MIME)
}

func (r *Reconciler) applyDownload(out download.Outcome) {
	if out.BatchID != r.counters.BatchID || r.counters.Done() {
		monitoring.RecordStaleResult("download")
		r.logger.Debug("Discarding download outcome of superseded batch",
			zap.String("batch_id", out.BatchID),
			zap.String("current", r.counters.BatchID))
		return
	}

	r.counters.Completed++
	if !out.Succeeded() {
		r.counters.Succeeded = false
		r.counters.Failures = append(r.counters.Failures, out.Message())
		if apperrors.IsRetryable(out.Err) {
			r.counters.RetryJobs = append(r.counters.RetryJobs, out.Job)
		}
	}

	r.presenter.Progress(r.counters.Completed, r.counters.Total, r.counters.Percent())

	if r.counters.Done() {
		r.finishBatch()
	}
}

func (r *Reconciler) finishBatch() {
	c := r.counters
	if c.Succeeded {
		r.logger.Info("Download batch finished", zap.String("batch_id", c.BatchID), zap.Int("total", c.Total))
		r.presenter.BatchSucceeded(c.Total)
		return
	}

	r.logger.Warn("Download batch finished with failures",
		zap.String("batch_id", c.BatchID),
		zap.Int("total", c.Total),
		zap.Int("failed", len(c.Failures)))

	jobs := c.RetryJobs
	if len(jobs) > 0 && r.presenter.ConfirmRetry(failureSummary(c)) {
		r.dispatch(jobs)
		return
	}

	r.counters.Failures = nil
	r.counters.RetryJobs = nil
}

func failureSummary(c BatchCounters) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Download finished: %d succeeded, %d failed.\n\nFailures:\n",
		c.Total-len(c.Failures), len(c.Failures))
	for _, f := range c.Failures {
		b.WriteString("- ")
		b.WriteString(f)
		b.WriteString("\n")
	}
	b.WriteString("\nRetry the failed downloads?")
	return b.String()
}
