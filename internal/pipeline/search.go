package pipeline

import (
	"context"
	"fmt"

	"github.com/oblivionis/oblivionis-go/internal/api"
	apperrors "github.com/oblivionis/oblivionis-go/internal/errors"
	"github.com/oblivionis/oblivionis-go/internal/monitoring"
)

// Searcher runs one search request
type Searcher interface {
	Search(ctx context.Context, req api.SearchRequest) ([]api.SongRecord, error)
}

// RunSearch performs req and posts the stamped outcome to out
func RunSearch(ctx context.Context, searcher Searcher, req api.SearchRequest, generation uint64, out chan<- SearchOutcome) {
	outcome := SearchOutcome{Generation: generation, Request: req}

	songs, err := func() (songs []api.SongRecord, err error) {
		defer apperrors.CapturePanic(&err)
		return searcher.Search(ctx, req)
	}()

	if err != nil {
		outcome.Err = apperrors.Classify(err)
		outcome.Message = searchFailureMessage(outcome.Err)
		monitoring.RecordError(string(outcome.Err.Type))
	} else {
		outcome.Songs = songs
	}

	out <- outcome
}

func searchFailureMessage(err *apperrors.AppError) string {
	switch {
	case apperrors.IsTimeoutError(err):
		return "Search request timed out, check the network or try again later"
	case apperrors.IsNetworkError(err):
		return fmt.Sprintf("Network error while searching: %v", err)
	default:
		return fmt.Sprintf("Network error or no response from the API: %v", err)
	}
}
