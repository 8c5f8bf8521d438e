package metadata

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/go-flac/flacvorbis"
	"github.com/go-flac/go-flac"
)

// ArtistSeparator joins multiple artist names in tags
const ArtistSeparator = " / "

// coverColorDepth is the bits-per-pixel written into FLAC picture blocks
const coverColorDepth = 24

// Manager writes tags into downloaded audio files
type Manager struct {
	config *Config
}

// Config contains metadata configuration
type Config struct {
	EmbedArtwork bool
	// ArtworkSize is used for picture block dimensions when the image
	// cannot be decoded.
	ArtworkSize int
}

// TrackMetadata contains the tags written for one track. Zero values are
// skipped.
type TrackMetadata struct {
	Title       string
	Artists     []string
	Album       string
	TrackNumber int
	Lyrics      string
	Cover       *Cover
}

// Artist returns the artist names joined for a single text tag
func (tm *TrackMetadata) Artist() string {
	return strings.Join(tm.Artists, ArtistSeparator)
}

// NewManager creates a new metadata manager
func NewManager(config *Config) *Manager {
	if config == nil {
		config = &Config{
			EmbedArtwork: true,
			ArtworkSize:  500,
		}
	}
	return &Manager{
		config: config,
	}
}

// ApplyMetadata writes metadata into an MP3 or FLAC file chosen by extension
func (m *Manager) ApplyMetadata(filePath string, metadata *TrackMetadata) error {
	if metadata == nil {
		return fmt.Errorf("metadata cannot be nil")
	}
	if !FileExists(filePath) {
		return fmt.Errorf("audio file not found: %s", filePath)
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".mp3":
		return m.applyMP3Metadata(filePath, metadata)
	case ".flac":
		return m.applyFLACMetadata(filePath, metadata)
	default:
		return fmt.Errorf("unsupported file format: %s", ext)
	}
}

// applyMP3Metadata writes ID3v2.4 frames
func (m *Manager) applyMP3Metadata(filePath string, metadata *TrackMetadata) error {
	tag, err := id3v2.Open(filePath, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("failed to open MP3 file: %w", err)
	}
	defer tag.Close()

	tag.SetVersion(4)
	tag.SetDefaultEncoding(id3v2.EncodingUTF8)

	if metadata.Title != "" {
		tag.SetTitle(metadata.Title)
	}
	if artist := metadata.Artist(); artist != "" {
		tag.SetArtist(artist)
	}
	if metadata.Album != "" {
		tag.SetAlbum(metadata.Album)
	}

	if metadata.TrackNumber > 0 {
		trackID := tag.CommonID("Track number/Position in set")
		tag.DeleteFrames(trackID)
		tag.AddTextFrame(trackID, id3v2.EncodingUTF8, strconv.Itoa(metadata.TrackNumber))
	}

	if metadata.Lyrics != "" {
		tag.DeleteFrames(tag.CommonID("Unsynchronised lyrics/text transcription"))
		tag.AddUnsynchronisedLyricsFrame(id3v2.UnsynchronisedLyricsFrame{
			Encoding:          id3v2.EncodingUTF8,
			Language:          "und",
			ContentDescriptor: "",
			Lyrics:            metadata.Lyrics,
		})
	}

	if m.config.EmbedArtwork && metadata.Cover != nil && len(metadata.Cover.Data) > 0 {
		mime := metadata.Cover.MIME
		if mime == "" {
			mime = "image/jpeg"
		}
		tag.DeleteFrames(tag.CommonID("Attached picture"))
		tag.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    mime,
			PictureType: id3v2.PTFrontCover,
			Description: "Front Cover",
			Picture:     metadata.Cover.Data,
		})
	}

	if err := tag.Save(); err != nil {
		return fmt.Errorf("failed to save MP3 metadata: %w", err)
	}

	return nil
}

// applyFLACMetadata writes Vorbis comments and a front cover picture block
func (m *Manager) applyFLACMetadata(filePath string, metadata *TrackMetadata) error {
	f, err := flac.ParseFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to parse FLAC file: %w", err)
	}

	var cmtBlock *flac.MetaDataBlock
	for _, block := range f.Meta {
		if block.Type == flac.VorbisComment {
			cmtBlock = block
			break
		}
	}

	var cmt *flacvorbis.MetaDataBlockVorbisComment
	if cmtBlock != nil {
		cmt, err = flacvorbis.ParseFromMetaDataBlock(*cmtBlock)
		if err != nil {
			cmt = flacvorbis.New()
		}
	} else {
		cmtBlock = &flac.MetaDataBlock{Type: flac.VorbisComment}
		f.Meta = append(f.Meta, cmtBlock)
		cmt = flacvorbis.New()
	}

	fields := []struct {
		name  string
		value string
	}{
		{flacvorbis.FIELD_TITLE, metadata.Title},
		{flacvorbis.FIELD_ARTIST, metadata.Artist()},
		{flacvorbis.FIELD_ALBUM, metadata.Album},
		{"LYRICS", metadata.Lyrics},
	}
	if metadata.TrackNumber > 0 {
		fields = append(fields, struct {
			name  string
			value string
		}{flacvorbis.FIELD_TRACKNUMBER, strconv.Itoa(metadata.TrackNumber)})
	}

	for _, field := range fields {
		if field.value == "" {
			continue
		}
		removeComment(cmt, field.name)
		if err := cmt.Add(field.name, field.value); err != nil {
			return fmt.Errorf("failed to add %s comment: %w", field.name, err)
		}
	}

	res := cmt.Marshal()
	cmtBlock.Data = res.Data

	if m.config.EmbedArtwork && metadata.Cover != nil && len(metadata.Cover.Data) > 0 {
		kept := make([]*flac.MetaDataBlock, 0, len(f.Meta)+1)
		for _, block := range f.Meta {
			if block.Type != flac.Picture {
				kept = append(kept, block)
			}
		}
		f.Meta = append(kept, &flac.MetaDataBlock{
			Type: flac.Picture,
			Data: m.createFLACPictureBlock(metadata.Cover),
		})
	}

	if err := saveFLAC(f, filePath); err != nil {
		return fmt.Errorf("failed to save FLAC file: %w", err)
	}

	return nil
}

// saveFLAC writes f beside filePath and renames it into place, so a failed
// write leaves the original audio untouched
func saveFLAC(f *flac.File, filePath string) error {
	tmpPath := filePath + ".tag"
	out, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	if _, err := out.Write(f.Marshal()); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// removeComment drops every comment named name (case-insensitive)
func removeComment(cmt *flacvorbis.MetaDataBlockVorbisComment, name string) {
	prefix := strings.ToUpper(name) + "="
	kept := cmt.Comments[:0]
	for _, c := range cmt.Comments {
		if !strings.HasPrefix(strings.ToUpper(c), prefix) {
			kept = append(kept, c)
		}
	}
	cmt.Comments = kept
}

// createFLACPictureBlock builds a METADATA_BLOCK_PICTURE body:
// type, mime, description, width, height, depth, colors, data.
func (m *Manager) createFLACPictureBlock(cover *Cover) []byte {
	mimeType := cover.MIME
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	width, height := cover.Width, cover.Height
	if width <= 0 || height <= 0 {
		width, height = m.config.ArtworkSize, m.config.ArtworkSize
	}

	description := "Front Cover"

	size := 4 + 4 + len(mimeType) + 4 + len(description) + 4 + 4 + 4 + 4 + 4 + len(cover.Data)
	data := make([]byte, size)

	pos := 0
	writeUint32BE(data[pos:], 3) // front cover
	pos += 4

	writeUint32BE(data[pos:], uint32(len(mimeType)))
	pos += 4
	copy(data[pos:], mimeType)
	pos += len(mimeType)

	writeUint32BE(data[pos:], uint32(len(description)))
	pos += 4
	copy(data[pos:], description)
	pos += len(description)

	writeUint32BE(data[pos:], uint32(width))
	pos += 4
	writeUint32BE(data[pos:], uint32(height))
	pos += 4
	writeUint32BE(data[pos:], coverColorDepth)
	pos += 4
	writeUint32BE(data[pos:], 0) // not indexed
	pos += 4

	writeUint32BE(data[pos:], uint32(len(cover.Data)))
	pos += 4
	copy(data[pos:], cover.Data)

	return data
}

// writeUint32BE writes a uint32 in big-endian format
func writeUint32BE(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

// FileExists checks if a file exists
func FileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return err == nil
}
