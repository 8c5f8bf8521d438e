package download

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/oblivionis/oblivionis-go/internal/api"
	apperrors "github.com/oblivionis/oblivionis-go/internal/errors"
	"github.com/oblivionis/oblivionis-go/internal/metadata"
	"github.com/oblivionis/oblivionis-go/internal/monitoring"
	"github.com/oblivionis/oblivionis-go/internal/network"
	"github.com/oblivionis/oblivionis-go/internal/store"
)

// MusicAPI is the part of the upstream client a download needs
type MusicAPI interface {
	ResolveTrackURL(ctx context.Context, source, id, bitrate string) (*api.TrackURL, error)
	Lyric(ctx context.Context, source, id string) (*api.Lyric, error)
	ResolvePicURL(ctx context.Context, source, picID string, size int) (string, error)
	FetchImage(ctx context.Context, link string) ([]byte, string, error)
	Stream(ctx context.Context, link, path string, progress func(downloaded, total int64)) (*network.StreamResult, error)
}

// HistoryRecorder stores completed downloads
type HistoryRecorder interface {
	Record(entry *store.HistoryEntry) error
}

// Outcome is what a download worker posts when it finishes
type Outcome struct {
	BatchID  string
	Job      Job
	SongName string
	FilePath string
	Err      *apperrors.AppError
}

// Succeeded reports whether the job completed without error
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// Message returns a human readable failure description
func (o Outcome) Message() string {
	if o.Err == nil {
		return ""
	}
	return fmt.Sprintf("'%s': %s", o.SongName, o.Err.Error())
}

// Worker performs single track downloads
type Worker struct {
	api     MusicAPI
	history HistoryRecorder
	logger  *zap.Logger
}

// NewWorker creates a download worker. history may be nil.
func NewWorker(musicAPI MusicAPI, history HistoryRecorder, logger *zap.Logger) *Worker {
	return &Worker{
		api:     musicAPI,
		history: history,
		logger:  monitoring.Named(logger, "download"),
	}
}

// Run admits job through gate and downloads it. Every failure, including
// a panic, comes back as an Outcome carrying the unchanged job.
func (w *Worker) Run(ctx context.Context, job Job, gate *Gate) Outcome {
	out := Outcome{Job: job, SongName: job.SongName}

	if err := gate.Acquire(ctx); err != nil {
		out.Err = apperrors.Classify(err)
		monitoring.PendingDownloads.Dec()
		return out
	}
	defer gate.Release()

	monitoring.RecordDownloadStart()
	start := time.Now()

	result := &downloadResult{format: "unknown"}
	err := func() (err error) {
		defer apperrors.CapturePanic(&err)
		return w.download(ctx, job, result)
	}()

	if err != nil {
		out.Err = apperrors.Classify(err)
		monitoring.RecordDownloadFailed(result.format, string(out.Err.Type))
		w.logger.Warn("Download failed",
			zap.String("song_id", job.SongID),
			zap.String("track", job.Describe()),
			zap.String("error_type", string(out.Err.Type)),
			zap.Error(err))
		return out
	}

	out.FilePath = result.path
	monitoring.RecordDownloadComplete(result.format, time.Since(start), result.bytes)
	w.logger.Info("Download completed",
		zap.String("song_id", job.SongID),
		zap.String("track", job.Describe()),
		zap.String("path", result.path),
		zap.Int64("bytes", result.bytes),
		zap.Duration("elapsed", time.Since(start)))

	w.recordHistory(job, result)
	return out
}

type downloadResult struct {
	path   string
	format string
	bytes  int64
}

func (w *Worker) download(ctx context.Context, job Job, result *downloadResult) error {
	track, err := w.api.ResolveTrackURL(ctx, job.Source, job.SongID, job.Bitrate)
	if err != nil {
		return err
	}

	result.format = ContainerFor(track.Bitrate)
	base := job.BaseName()
	result.path = filepath.Join(job.MusicDir, base+"."+result.format)

	streamed, err := w.api.Stream(ctx, track.URL, result.path, nil)
	if err != nil {
		return err
	}
	result.bytes = streamed.BytesWritten

	var lyricText string
	if job.LyricMode.Any() {
		lyric, err := w.api.Lyric(ctx, job.Source, job.SongID)
		if err != nil {
			return err
		}
		if lyric.Original != "" {
			lyricText = metadata.MergeLyrics(lyric.Original, lyric.Translated)
		}
		if lyricText != "" && job.LyricMode.File() {
			if _, err := metadata.SaveLyricFile(job.LyricDir, base, lyricText); err != nil {
				return apperrors.NewUnknownError("failed to write lyric file", err)
			}
		}
	}

	cover, err := w.fetchCover(ctx, job)
	if err != nil {
		return err
	}

	md := &metadata.TrackMetadata{
		Title:       job.SongName,
		Artists:     job.Artists,
		Album:       job.Album,
		TrackNumber: job.TrackNumber(),
		Cover:       cover,
	}
	if job.LyricMode.Embed() {
		md.Lyrics = lyricText
	}

	tagger := metadata.NewManager(&metadata.Config{EmbedArtwork: true, ArtworkSize: job.CoverSize})
	if err := tagger.ApplyMetadata(result.path, md); err != nil {
		return apperrors.NewMetadataError("failed to write tags", err)
	}

	return nil
}

// fetchCover returns nil without error when the song has no cover
func (w *Worker) fetchCover(ctx context.Context, job Job) (*metadata.Cover, error) {
	if job.PicID == "" {
		return nil, nil
	}

	link, err := w.api.ResolvePicURL(ctx, job.Source, job.PicID, job.CoverSize)
	if apperrors.IsNotFoundError(err) {
		w.logger.Debug("No cover for song", zap.String("song_id", job.SongID))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	data, mime, err := w.api.FetchImage(ctx, link)
	if err != nil {
		return nil, err
	}

	return metadata.PrepareCover(data, mime, job.CoverSize), nil
}

func (w *Worker) recordHistory(job Job, result *downloadResult) {
	if w.history == nil {
		return
	}

	err := w.history.Record(&store.HistoryEntry{
		SongID:   job.SongID,
		Source:   job.Source,
		Title:    job.SongName,
		Artist:   strings.Join(job.Artists, metadata.ArtistSeparator),
		Album:    job.Album,
		FilePath: result.path,
		Format:   result.format,
		Bytes:    result.bytes,
	})
	if err != nil {
		w.logger.Warn("Failed to record download history", zap.String("song_id", job.SongID), zap.Error(err))
	}
}
