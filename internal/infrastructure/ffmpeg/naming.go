package ffmpeg

import (
	"crypto/md5"
	"encoding/hex"
	"path/filepath"
	"strings"
)

const (
	playlistName  = "audio.m3u8"
	recordingName = "audio.mp3"
	segmentGlob   = "*.ts"
	playlistGlob  = "*.m3u8"
)

// ShortID derives the stable directory name of a source URL: the lowercase
// hex MD5 digest of the URL bytes.
func ShortID(sourceURL string) string {
	sum := md5.Sum([]byte(sourceURL))
	return hex.EncodeToString(sum[:])
}

// Layout maps source URLs to on-disk and public locations
type Layout struct {
	Root          string
	PublicBaseURL string
}

// WorkDir returns the job directory for a source URL
func (l Layout) WorkDir(sourceURL string) string {
	return filepath.Join(l.Root, ShortID(sourceURL))
}

// PlaylistPath returns where the relay writes its playlist
func (l Layout) PlaylistPath(sourceURL string) string {
	return filepath.Join(l.WorkDir(sourceURL), playlistName)
}

// SegmentPattern returns the ffmpeg segment filename template
func (l Layout) SegmentPattern(sourceURL string) string {
	return filepath.Join(l.WorkDir(sourceURL), "segment_%05d.ts")
}

// RecordingPath returns where the recorder writes its file
func (l Layout) RecordingPath(sourceURL string) string {
	return filepath.Join(l.WorkDir(sourceURL), recordingName)
}

// StreamURL returns the public playlist URL
func (l Layout) StreamURL(sourceURL string) string {
	return l.publicPath(sourceURL, playlistName)
}

// RecordURL returns the public recording URL
func (l Layout) RecordURL(sourceURL string) string {
	return l.publicPath(sourceURL, recordingName)
}

func (l Layout) publicPath(sourceURL, file string) string {
	base := strings.TrimRight(l.PublicBaseURL, "/")
	return base + "/" + ShortID(sourceURL) + "/" + file
}
