package metadata

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// lrcTimestamp matches a leading [mm:ss.xx] or [mm:ss:xx] tag
var lrcTimestamp = regexp.MustCompile(`^\[(\d{1,3}):(\d{2})[.:](\d{1,3})\]`)

type lyricGroup struct {
	key         string
	ms          int
	original    []string
	translation []string
}

// MergeLyrics interleaves a translated LRC into the original one. Lines are
// grouped by their exact timestamp tag and emitted in time order, each
// original line directly followed by its translation. A translation with no
// matching original line gets an empty placeholder line before it. An empty
// translation returns original unchanged.
func MergeLyrics(original, translated string) string {
	if strings.TrimSpace(translated) == "" {
		return original
	}

	groups := make(map[string]*lyricGroup)
	var header []string

	collect := func(text string, isTranslation bool) {
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimRight(line, "\r")
			loc := lrcTimestamp.FindStringSubmatchIndex(line)
			if loc == nil {
				if !isTranslation && strings.TrimSpace(line) != "" {
					header = append(header, line)
				}
				continue
			}

			key := line[:loc[1]]
			g, ok := groups[key]
			if !ok {
				g = &lyricGroup{key: key, ms: timestampMillis(line, loc)}
				groups[key] = g
			}
			if isTranslation {
				g.translation = append(g.translation, line)
			} else {
				g.original = append(g.original, line)
			}
		}
	}
	collect(original, false)
	collect(translated, true)

	ordered := make([]*lyricGroup, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].ms != ordered[j].ms {
			return ordered[i].ms < ordered[j].ms
		}
		return ordered[i].key < ordered[j].key
	})

	merged := append([]string(nil), header...)
	for _, g := range ordered {
		n := len(g.original)
		if len(g.translation) > n {
			n = len(g.translation)
		}
		for i := 0; i < n; i++ {
			if i < len(g.original) {
				merged = append(merged, g.original[i])
			} else {
				merged = append(merged, g.key)
			}
			if i < len(g.translation) {
				merged = append(merged, g.translation[i])
			}
		}
	}

	return strings.Join(merged, "\n")
}

// timestampMillis converts the matched tag into milliseconds. The fraction
// is read as hundredths for two digits and thousandths for three.
func timestampMillis(line string, loc []int) int {
	minutes, _ := strconv.Atoi(line[loc[2]:loc[3]])
	seconds, _ := strconv.Atoi(line[loc[4]:loc[5]])
	fraction := line[loc[6]:loc[7]]
	frac, _ := strconv.Atoi(fraction)
	switch len(fraction) {
	case 1:
		frac *= 100
	case 2:
		frac *= 10
	}
	return (minutes*60+seconds)*1000 + frac
}

// SaveLyricFile writes text to dir/<baseName>.lrc and returns the path
func SaveLyricFile(dir, baseName, text string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create lyric directory: %w", err)
	}

	lrcPath := filepath.Join(dir, baseName+".lrc")
	if err := os.WriteFile(lrcPath, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("failed to save LRC file: %w", err)
	}
	return lrcPath, nil
}
