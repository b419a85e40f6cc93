package store

import (
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
)

// UploadRecord is one audit row for an upload or pattern-sequence
// programming call: what was requested, and whether the controller
// accepted it.
type UploadRecord struct {
	ID               uint      `gorm:"primarykey" json:"id"`
	Timestamp        time.Time `gorm:"index;not null" json:"timestamp"`
	Channel          string    `gorm:"index;size:64" json:"channel"`
	Mode             string    `gorm:"size:32" json:"mode"`
	PatternIndices   string    `json:"pattern_indices"` // comma-separated firmware/ordinal indices
	NumPatterns      int       `gorm:"not null" json:"num_patterns"`
	NumRepeats       uint32    `gorm:"default:0" json:"num_repeats"`
	Compression      string    `gorm:"size:16" json:"compression"`
	Triggered        bool      `json:"triggered"`
	Success          bool      `gorm:"index;not null" json:"success"`
	ErrorCode        int       `json:"error_code,omitempty"`
	ErrorDescription string    `gorm:"size:128" json:"error_description,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// TableName specifies the table name for UploadRecord.
func (UploadRecord) TableName() string {
	return "upload_records"
}

// BeforeCreate fills in Timestamp/CreatedAt if the caller left them zero.
func (u *UploadRecord) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.Timestamp.IsZero() {
		u.Timestamp = now
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	return nil
}

// EncodeIndices renders a slice of pattern indices as the record's
// comma-separated PatternIndices column value.
func EncodeIndices(indices []int) string {
	parts := make([]string, len(indices))
	for i, idx := range indices {
		parts[i] = strconv.Itoa(idx)
	}
	return strings.Join(parts, ",")
}

// DecodeIndices parses a PatternIndices column value back into a slice.
func DecodeIndices(csv string) []int {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}
