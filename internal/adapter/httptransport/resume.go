package httptransport

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// resumeToken is the content of the opaque resume data handed to the
// download manager when a resumable fetch is paused.
type resumeToken struct {
	URL          string `json:"url"`
	TempPath     string `json:"temp_path"`
	Offset       int64  `json:"offset"`
	Total        int64  `json:"total,omitempty"`
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

func encodeResumeData(t *resumeToken) ([]byte, error) {
	return json.Marshal(t)
}

func decodeResumeData(data []byte) (*resumeToken, error) {
	var t resumeToken
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to decode resume data: %w", err)
	}
	if t.URL == "" || t.TempPath == "" || t.Offset < 0 {
		return nil, fmt.Errorf("resume data is incomplete")
	}
	return &t, nil
}

// validator returns the If-Range value, preferring a strong ETag
func (t *resumeToken) validator() string {
	if t.ETag != "" && !strings.HasPrefix(t.ETag, "W/") {
		return t.ETag
	}
	return t.LastModified
}

// parseContentRange returns the complete length from a header such as
// "bytes 200-1023/1024", or 0 when it is missing or "*".
func parseContentRange(contentRange string) int64 {
	idx := strings.LastIndex(contentRange, "/")
	if idx == -1 {
		return 0
	}
	size, err := strconv.ParseInt(strings.TrimSpace(contentRange[idx+1:]), 10, 64)
	if err != nil {
		return 0
	}
	return size
}

// parseRangeStart returns the first byte position of a Content-Range header
func parseRangeStart(contentRange string) (int64, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(contentRange), "bytes ")
	if !ok {
		return 0, false
	}
	dash := strings.Index(rest, "-")
	if dash == -1 {
		return 0, false
	}
	start, err := strconv.ParseInt(rest[:dash], 10, 64)
	if err != nil {
		return 0, false
	}
	return start, true
}
