package pipeline

import (
	"context"
	"fmt"

	apperrors "github.com/oblivionis/oblivionis-go/internal/errors"
	"github.com/oblivionis/oblivionis-go/internal/monitoring"
)

// CoverFetcher resolves and downloads cover art
type CoverFetcher interface {
	ResolvePicURL(ctx context.Context, source, picID string, size int) (string, error)
	FetchImage(ctx context.Context, link string) ([]byte, string, error)
}

// RunPicture resolves the cover of picID, fetches it and posts the outcome
// tagged with source and picID to out
func RunPicture(ctx context.Context, fetcher CoverFetcher, source, picID string, size int, out chan<- PictureOutcome) {
	outcome := PictureOutcome{Source: source, PicID: picID}

	err := func() (err error) {
		defer apperrors.CapturePanic(&err)

		link, err := fetcher.ResolvePicURL(ctx, source, picID, size)
		if err != nil {
			return err
		}
		outcome.Data, outcome.MIME, err = fetcher.FetchImage(ctx, link)
		return err
	}()

	if err != nil {
		outcome.Data = nil
		outcome.Err = apperrors.Classify(err)
		outcome.Message = pictureFailureMessage(outcome.Err)
		monitoring.RecordError(string(outcome.Err.Type))
	}

	out <- outcome
}

func pictureFailureMessage(err *apperrors.AppError) string {
	switch err.Type {
	case apperrors.ErrTypeNotFound:
		return "Album cover not found"
	case apperrors.ErrTypeTimeout:
		return "Cover loading timed out, check the network"
	case apperrors.ErrTypeNetwork:
		return fmt.Sprintf("Network error while loading cover: %v", err)
	default:
		return fmt.Sprintf("Failed to load cover: %v", err)
	}
}
