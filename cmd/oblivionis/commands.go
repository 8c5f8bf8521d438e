package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/oblivionis/oblivionis-go/internal/api"
	"github.com/oblivionis/oblivionis-go/internal/config"
)

const helpText = `Commands:
  search <keyword>      search tracks
  album <keyword>       search albums
  playlist <id|name>    load a playlist by id or search playlists
  next | prev           page through the last search
  cover <n>             load the cover of result n
  download <sel>        download results, e.g. 1,3-5 or all
  source <name>         switch the music source
  set <key> <value>     change a download setting
  settings              show settings
  history               show recent downloads
  quit
Results marked * are already in the download history.`

// handle runs one input line. It reports whether the session should end.
func (a *App) handle(line string) bool {
	name, arg := parseCommand(line)

	switch name {
	case "":
	case "quit", "exit", "q":
		return true
	case "help", "?":
		fmt.Fprintln(a.console.out, helpText)
	case "search", "s":
		a.search(arg, api.KindTrack)
	case "album":
		a.search(arg, api.KindAlbum)
	case "playlist":
		a.search(arg, api.KindPlaylist)
	case "next", "n":
		if !a.reconciler.NextPage() {
			fmt.Fprintln(a.console.out, "Nothing to page through")
		}
	case "prev", "p":
		if !a.reconciler.PrevPage() {
			fmt.Fprintln(a.console.out, "Already on the first page")
		}
	case "cover":
		a.cover(arg)
	case "download", "d":
		a.download(arg)
	case "source":
		a.setSource(arg)
	case "set":
		a.set(arg)
	case "settings":
		a.console.PrintSettings(a.cfg)
	case "history":
		a.printHistory()
	default:
		fmt.Fprintf(a.console.out, "Unknown command %q, type 'help'\n", name)
	}
	return false
}

func (a *App) search(keyword string, kind api.SearchKind) {
	if keyword == "" {
		fmt.Fprintln(a.console.out, "Enter a search keyword")
		return
	}
	a.reconciler.Search(api.SearchRequest{
		Keyword: keyword,
		Source:  a.cfg.API.DefaultSource,
		Kind:    kind,
		Page:    1,
		Count:   a.cfg.API.SearchCount,
	})
}

func (a *App) cover(arg string) {
	songs := a.console.Songs()
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(songs) {
		fmt.Fprintf(a.console.out, "Pick a result between 1 and %d\n", len(songs))
		return
	}
	song := songs[n-1]
	a.reconciler.ShowCover(song.Source, song.PicID.String())
}

func (a *App) download(arg string) {
	songs := a.console.Songs()
	picks, err := parseSelection(arg, len(songs))
	if err != nil {
		fmt.Fprintf(a.console.out, "[ERROR] %v\n", err)
		return
	}

	selected := make([]api.SongRecord, len(picks))
	for i, idx := range picks {
		selected[i] = songs[idx]
	}

	if _, err := a.reconciler.Download(selected); err != nil {
		fmt.Fprintf(a.console.out, "[ERROR] %v\n", err)
		return
	}
	fmt.Fprintf(a.console.out, "Queued %d songs\n", len(selected))
}

func (a *App) setSource(source string) {
	if !slices.Contains(config.Sources, source) {
		fmt.Fprintf(a.console.out, "Unknown source %q, one of %s\n", source, strings.Join(config.Sources, ", "))
		return
	}
	a.cfg.API.DefaultSource = source
	a.persistSettings()
}

func (a *App) set(arg string) {
	key, value := parseCommand(arg)
	updated, err := applySetting(a.cfg.Download, key, value)
	if err != nil {
		fmt.Fprintf(a.console.out, "[ERROR] %v\n", err)
		return
	}
	a.cfg.Download = updated
	a.persistSettings()
	a.console.PrintSettings(a.cfg)
}

func (a *App) persistSettings() {
	if err := a.cfg.Save(a.configPath); err != nil {
		a.logger.Warn("Failed to save settings", zap.Error(err))
	}
}

func (a *App) printHistory() {
	entries, err := a.history.Recent(10)
	if err != nil {
		fmt.Fprintf(a.console.out, "[ERROR] %v\n", err)
		return
	}
	if len(entries) == 0 {
		fmt.Fprintln(a.console.out, "No downloads yet")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(a.console.out, "%s  %s - %s (%s) %s\n",
			e.DownloadedAt.Format("2006-01-02 15:04"), e.Title, e.Artist, e.Format, e.FilePath)
	}
}

func parseCommand(line string) (string, string) {
	line = strings.TrimSpace(line)
	name, arg, _ := strings.Cut(line, " ")
	return strings.ToLower(name), strings.TrimSpace(arg)
}

// parseSelection turns "1,3-5" or "all" into zero-based indices of a list
// of n results, in order and without duplicates.
func parseSelection(sel string, n int) ([]int, error) {
	if n == 0 {
		return nil, fmt.Errorf("no results to download")
	}
	if sel == "" {
		return nil, fmt.Errorf("select songs, e.g. 1,3-5 or all")
	}

	if strings.EqualFold(sel, "all") {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out, nil
	}

	seen := make(map[int]bool)
	var out []int
	for _, part := range strings.Split(sel, ",") {
		part = strings.TrimSpace(part)
		lo, hi, isRange := strings.Cut(part, "-")
		if !isRange {
			hi = lo
		}

		from, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid selection %q", part)
		}
		to, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return nil, fmt.Errorf("invalid selection %q", part)
		}
		if from < 1 || to > n || from > to {
			return nil, fmt.Errorf("selection %q out of range 1-%d", part, n)
		}

		for i := from; i <= to; i++ {
			if !seen[i] {
				seen[i] = true
				out = append(out, i-1)
			}
		}
	}
	return out, nil
}

// applySetting returns d with key set to value, or an error if the result
// would not be a valid configuration.
func applySetting(d config.DownloadConfig, key, value string) (config.DownloadConfig, error) {
	switch key {
	case "bitrate":
		d.Bitrate = value
	case "cover_size":
		n, err := strconv.Atoi(value)
		if err != nil {
			return d, fmt.Errorf("cover_size must be a number")
		}
		d.CoverSize = n
	case "lyric_mode":
		d.LyricMode = config.LyricMode(value)
	case "numbering_mode":
		d.NumberingMode = config.NumberingMode(value)
	case "max_concurrent":
		n, err := strconv.Atoi(value)
		if err != nil {
			return d, fmt.Errorf("max_concurrent must be a number")
		}
		d.MaxConcurrent = n
	case "music_dir":
		d.MusicDir = value
	case "lyric_dir":
		d.LyricDir = value
	default:
		return d, fmt.Errorf("unknown setting %q", key)
	}

	if err := d.Validate(); err != nil {
		return d, err
	}
	return d, nil
}
