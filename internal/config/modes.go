package config

// LyricMode controls whether lyrics are embedded, written as a sidecar, both or neither
type LyricMode string

const (
	LyricModeNone         LyricMode = "none"
	LyricModeEmbed        LyricMode = "embed"
	LyricModeFile         LyricMode = "file"
	LyricModeEmbedAndFile LyricMode = "embed_and_file"
)

// Valid reports whether m is a known lyric mode
func (m LyricMode) Valid() bool {
	switch m {
	case LyricModeNone, LyricModeEmbed, LyricModeFile, LyricModeEmbedAndFile:
		return true
	}
	return false
}

// Embed reports whether lyrics are written into the audio file
func (m LyricMode) Embed() bool {
	return m == LyricModeEmbed || m == LyricModeEmbedAndFile
}

// File reports whether a .lrc sidecar is written
func (m LyricMode) File() bool {
	return m == LyricModeFile || m == LyricModeEmbedAndFile
}

// Any reports whether lyrics need to be fetched at all
func (m LyricMode) Any() bool {
	return m.Embed() || m.File()
}

// NumberingMode controls where the ordinal label of a batch item is applied
type NumberingMode string

const (
	NumberingNone     NumberingMode = "none"
	NumberingMetadata NumberingMode = "metadata"
	NumberingFilename NumberingMode = "filename"
	NumberingBoth     NumberingMode = "both"
)

// Valid reports whether m is a known numbering mode
func (m NumberingMode) Valid() bool {
	switch m {
	case NumberingNone, NumberingMetadata, NumberingFilename, NumberingBoth:
		return true
	}
	return false
}

// Enabled reports whether ordinal labels are assigned at all
func (m NumberingMode) Enabled() bool {
	return m == NumberingMetadata || m == NumberingFilename || m == NumberingBoth
}

// InMetadata reports whether the ordinal is written as the track number tag
func (m NumberingMode) InMetadata() bool {
	return m == NumberingMetadata || m == NumberingBoth
}

// InFilename reports whether the ordinal prefixes the file name
func (m NumberingMode) InFilename() bool {
	return m == NumberingFilename || m == NumberingBoth
}
