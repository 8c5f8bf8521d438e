package pipeline

import (
	"github.com/oblivionis/oblivionis-go/internal/api"
	"github.com/oblivionis/oblivionis-go/internal/download"
	apperrors "github.com/oblivionis/oblivionis-go/internal/errors"
)

// Queue capacities. Workers block on a full queue, never the reconciler.
const (
	searchQueueSize   = 64
	pictureQueueSize  = 64
	downloadQueueSize = 1024
)

// SearchOutcome is posted by a search worker. Exactly one of Songs and Err
// is meaningful.
type SearchOutcome struct {
	Generation uint64
	Request    api.SearchRequest
	Songs      []api.SongRecord
	Err        *apperrors.AppError
	Message    string
}

// PictureOutcome is posted by a picture worker
type PictureOutcome struct {
	Source  string
	PicID   string
	Data    []byte
	MIME    string
	Err     *apperrors.AppError
	Message string
}

// Queues are the only channel between workers and the reconciler
type Queues struct {
	Search   chan SearchOutcome
	Picture  chan PictureOutcome
	Download chan download.Outcome
}

// NewQueues creates buffered result queues
func NewQueues() *Queues {
	return &Queues{
		Search:   make(chan SearchOutcome, searchQueueSize),
		Picture:  make(chan PictureOutcome, pictureQueueSize),
		Download: make(chan download.Outcome, downloadQueueSize),
	}
}
