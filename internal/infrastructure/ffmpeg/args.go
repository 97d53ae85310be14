package ffmpeg

import (
	"strconv"

	"github.com/radiocast/backend/internal/domain"
)

// buildArgs returns the ffmpeg arguments for a worker role
func (m *Manager) buildArgs(role domain.WorkerRole, sourceURL string) []string {
	if role == domain.WorkerRoleRecorder {
		return []string{
			"-y",
			"-hide_banner",
			"-loglevel", "warning",
			"-i", sourceURL,
			"-vn",
			"-acodec", "libmp3lame",
			"-flush_packets", "1",
			m.layout.RecordingPath(sourceURL),
		}
	}

	segment := m.cfg.SegmentTime
	if segment <= 0 {
		segment = 4
	}
	listSize := m.cfg.PlaylistSize
	if listSize <= 0 {
		listSize = 6
	}

	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "warning",
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "2",
		"-i", sourceURL,
		"-vn",
		"-acodec", "mp3",
		"-f", "hls",
		"-hls_time", strconv.Itoa(segment),
		"-hls_list_size", strconv.Itoa(listSize),
		"-hls_flags", "delete_segments",
		"-hls_segment_filename", m.layout.SegmentPattern(sourceURL),
		m.layout.PlaylistPath(sourceURL),
	}
}
