package bundle

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Metadata describes the video inside a download bundle.
type Metadata struct {
	VideoID   string    `json:"video_id"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"created_at"`
}

// Build packages the video with its prompt and metadata into a zip, the
// shape users get when they ask for a bundled download.
func Build(meta Metadata, videoData []byte) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)

	video, err := zw.Create("video.mp4")
	if err != nil {
		return nil, fmt.Errorf("bundle: create video entry: %w", err)
	}
	if _, err := video.Write(videoData); err != nil {
		return nil, fmt.Errorf("bundle: write video: %w", err)
	}

	prompt, err := zw.Create("prompt.txt")
	if err != nil {
		return nil, fmt.Errorf("bundle: create prompt entry: %w", err)
	}
	if _, err := prompt.Write([]byte(meta.Prompt)); err != nil {
		return nil, fmt.Errorf("bundle: write prompt: %w", err)
	}

	encoded, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("bundle: encode metadata: %w", err)
	}
	metadata, err := zw.Create("metadata.json")
	if err != nil {
		return nil, fmt.Errorf("bundle: create metadata entry: %w", err)
	}
	if _, err := metadata.Write(encoded); err != nil {
		return nil, fmt.Errorf("bundle: write metadata: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("bundle: finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}
