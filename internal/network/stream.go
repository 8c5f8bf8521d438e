package network

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	apperrors "github.com/oblivionis/oblivionis-go/internal/errors"
)

// StreamConfig holds configuration for a streamed download
type StreamConfig struct {
	URL        string
	OutputPath string
	Headers    map[string]string
	// StallTimeout bounds the wait for response headers and for every
	// subsequent body read; the transfer as a whole is not bounded.
	StallTimeout     time.Duration
	ProgressCallback func(downloaded, total int64)
}

// StreamResult contains the result of a streamed download
type StreamResult struct {
	BytesWritten int64
	TotalBytes   int64
}

// StreamToFile downloads URL into OutputPath incrementally. The body is
// written to a "<OutputPath>.*.part" file of its own and renamed into place
// only after the whole body arrived, so a failed transfer never leaves a
// truncated file at OutputPath and concurrent transfers to one path never
// mix their bytes.
func StreamToFile(ctx context.Context, client *http.Client, config *StreamConfig) (*StreamResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var stalled atomic.Bool
	stallTimeout := config.StallTimeout
	if stallTimeout <= 0 {
		stallTimeout = 30 * time.Second
	}
	watchdog := time.AfterFunc(stallTimeout, func() {
		stalled.Store(true)
		cancel()
	})
	defer watchdog.Stop()

	wrap := func(err error) error {
		if stalled.Load() {
			return apperrors.NewTimeoutError("download stalled", err)
		}
		return apperrors.Classify(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, config.URL, nil)
	if err != nil {
		return nil, apperrors.NewNetworkError("failed to create request", err)
	}
	for key, value := range config.Headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, wrap(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperrors.NewStatusError(resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(config.OutputPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	outputFile, err := os.CreateTemp(filepath.Dir(config.OutputPath), filepath.Base(config.OutputPath)+".*.part")
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	partialPath := outputFile.Name()
	if err := outputFile.Chmod(0644); err != nil {
		outputFile.Close()
		os.Remove(partialPath)
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	result := &StreamResult{TotalBytes: resp.ContentLength}
	fail := func(err error) (*StreamResult, error) {
		outputFile.Close()
		os.Remove(partialPath)
		return result, err
	}

	bufferedWriter := bufio.NewWriterSize(outputFile, 256*1024)
	buffer := make([]byte, 64*1024)

	for {
		watchdog.Reset(stallTimeout)
		n, readErr := resp.Body.Read(buffer)
		if n > 0 {
			if _, err := bufferedWriter.Write(buffer[:n]); err != nil {
				return fail(fmt.Errorf("failed to write to file: %w", err))
			}
			result.BytesWritten += int64(n)

			if config.ProgressCallback != nil {
				config.ProgressCallback(result.BytesWritten, result.TotalBytes)
			}
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fail(wrap(readErr))
		}
	}

	if err := bufferedWriter.Flush(); err != nil {
		return fail(fmt.Errorf("failed to flush buffer: %w", err))
	}

	if result.TotalBytes > 0 && result.BytesWritten < result.TotalBytes {
		return fail(apperrors.NewNetworkError(
			fmt.Sprintf("download incomplete: %d of %d bytes", result.BytesWritten, result.TotalBytes), nil))
	}

	if err := outputFile.Close(); err != nil {
		os.Remove(partialPath)
		return result, fmt.Errorf("failed to close output file: %w", err)
	}

	if err := os.Rename(partialPath, config.OutputPath); err != nil {
		os.Remove(partialPath)
		return result, fmt.Errorf("failed to move file to final location: %w", err)
	}

	return result, nil
}
