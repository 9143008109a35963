package handler

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/connectly/outreach-be/internal/api/storage"
)

// Job listing pages are keyed by (created_at, id) descending; the cursor is
// the last row's keyset rendered opaque so callers cannot depend on it.
const cursorSeparator = "|"

// DecodeJobCursor parses an opaque pagination cursor back into its keyset.
// An empty cursor means the first page.
func DecodeJobCursor(cursorStr string) (*storage.JobCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, fmt.Errorf("malformed cursor: %w", err)
	}

	nanos, jobID, found := strings.Cut(string(decoded), cursorSeparator)
	if !found {
		return nil, fmt.Errorf("malformed cursor: missing keyset separator")
	}

	createdAt, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed cursor timestamp: %w", err)
	}
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, fmt.Errorf("malformed cursor job id: %w", err)
	}

	return &storage.JobCursor{
		CreatedAt: time.Unix(0, createdAt),
		JobID:     jobID,
	}, nil
}

// EncodeJobCursor renders the keyset as an opaque cursor string
func EncodeJobCursor(cursor *storage.JobCursor) (string, error) {
	keyset := strconv.FormatInt(cursor.CreatedAt.UnixNano(), 10) + cursorSeparator + cursor.JobID
	return base64.RawURLEncoding.EncodeToString([]byte(keyset)), nil
}
