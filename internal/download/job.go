package download

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/oblivionis/oblivionis-go/internal/api"
	"github.com/oblivionis/oblivionis-go/internal/config"
)

// LosslessBitrate is the lowest reported bitrate stored as FLAC
const LosslessBitrate = 740

// Container formats
const (
	FormatFLAC = "flac"
	FormatMP3  = "mp3"
)

// Job is one track download, captured from the selection and a settings
// snapshot at dispatch time. It never reads live settings afterwards and is
// handed back verbatim as the retry argument when it fails.
type Job struct {
	Ordinal       string
	SongID        string
	SongName      string
	Artists       []string
	Album         string
	Source        string
	PicID         string
	Bitrate       string
	CoverSize     int
	LyricMode     config.LyricMode
	NumberingMode config.NumberingMode
	MusicDir      string
	LyricDir      string
	// FileStem overrides the sanitized song name in file names. BuildJobs
	// sets it when two songs of a batch would share a file.
	FileStem      string
}

// ContainerFor returns the container format for a reported bitrate
func ContainerFor(bitrate int) string {
	if bitrate >= LosslessBitrate {
		return FormatFLAC
	}
	return FormatMP3
}

// forbiddenChars are stripped from file names
const forbiddenChars = `\/:*?"<>|`

// SanitizeFilename removes path-breaking characters and surrounding spaces
func SanitizeFilename(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(forbiddenChars, r) {
			return -1
		}
		return r
	}, name)
	return strings.TrimSpace(cleaned)
}

// BaseName is the file name without extension shared by the audio file
// and its lyric sidecar
func (j Job) BaseName() string {
	name := j.FileStem
	if name == "" {
		name = SanitizeFilename(j.SongName)
	}
	if j.Ordinal != "" && j.NumberingMode.InFilename() {
		return j.Ordinal + "." + name
	}
	return name
}

// TrackNumber returns the ordinal for the track number tag, or 0 when
// numbering is not written into metadata
func (j Job) TrackNumber() int {
	if j.Ordinal == "" || !j.NumberingMode.InMetadata() {
		return 0
	}
	n, err := strconv.Atoi(j.Ordinal)
	if err != nil {
		return 0
	}
	return n
}

// Describe returns a short label for logs and prompts
func (j Job) Describe() string {
	if len(j.Artists) == 0 {
		return j.SongName
	}
	return fmt.Sprintf("%s - %s", j.SongName, strings.Join(j.Artists, ", "))
}

// BuildJobs captures one job per song from settings. Ordinals are
// zero-padded to the digit count of the batch size and only assigned when
// numbering is enabled. Songs whose file names collide within the batch get
// a " (2)", " (3)" ... suffix.
func BuildJobs(songs []api.SongRecord, settings config.DownloadConfig) []Job {
	width := len(strconv.Itoa(len(songs)))
	jobs := make([]Job, 0, len(songs))
	used := make(map[string]bool, len(songs))

	for i, song := range songs {
		var ordinal string
		if settings.NumberingMode.Enabled() {
			ordinal = fmt.Sprintf("%0*d", width, i+1)
		}

		artists := make([]string, len(song.Artist))
		copy(artists, song.Artist)

		job := Job{
			Ordinal:       ordinal,
			SongID:        song.ID.String(),
			SongName:      song.Name,
			Artists:       artists,
			Album:         song.Album,
			Source:        song.Source,
			PicID:         song.PicID.String(),
			Bitrate:       settings.Bitrate,
			CoverSize:     settings.CoverSize,
			LyricMode:     settings.LyricMode,
			NumberingMode: settings.NumberingMode,
			MusicDir:      settings.MusicDir,
			LyricDir:      settings.LyricDir,
		}
		claimFileName(&job, used)
		jobs = append(jobs, job)
	}

	return jobs
}

// claimFileName gives job a base name not yet in used. Names are compared
// case-insensitively.
func claimFileName(job *Job, used map[string]bool) {
	stem := SanitizeFilename(job.SongName)
	for n := 2; used[strings.ToLower(job.BaseName())]; n++ {
		job.FileStem = fmt.Sprintf("%s (%d)", stem, n)
	}
	used[strings.ToLower(job.BaseName())] = true
}
