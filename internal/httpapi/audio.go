package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
)

const responseAudioSubdir = "responses"

// writeResponseAudio content-addresses a turn's synthesized audio into the
// TTS disk cache directory so the carrier can fetch it over HTTP (spec
// §6.1's <Play> verb wants a URL, not inline bytes); returns the filename
// alone, suitable for building the /calls/{call_id}/tts/{filename} URL.
func (s *Server) writeResponseAudio(audio []byte) (filename string, err error) {
	if s.ttsCacheDir == "" || len(audio) == 0 {
		return "", os.ErrInvalid
	}
	sum := sha256.Sum256(audio)
	filename = hex.EncodeToString(sum[:]) + ".audio"
	dir := filepath.Join(s.ttsCacheDir, responseAudioSubdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, filename)
	if _, statErr := os.Stat(path); statErr == nil {
		return filename, nil
	}
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return "", err
	}
	return filename, nil
}

func (s *Server) audioURL(callID, filename string) string {
	path := "/calls/" + callID + "/tts/" + filename
	if s.webhookBase == "" {
		return path
	}
	return s.webhookBase + path
}

// handleTTSAudio serves a content-addressed synthesized-audio file (spec
// §6.2): idempotent, cacheable, never mutated once written.
func (s *Server) handleTTSAudio(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if filename == "" || filepath.Base(filename) != filename {
		http.NotFound(w, r)
		return
	}
	path := filepath.Join(s.ttsCacheDir, responseAudioSubdir, filename)
	f, err := os.Open(path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("Content-Type", "audio/mpeg")
	http.ServeContent(w, r, filename, modTimeOrNow(info.ModTime()), f)
}

func modTimeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
