package store

import "gorm.io/gorm"

// UploadRepository handles audit-record database operations.
type UploadRepository struct {
	db *gorm.DB
}

// NewUploadRepository wraps a GORM handle with upload-record operations.
func NewUploadRepository(db *gorm.DB) *UploadRepository {
	return &UploadRepository{db: db}
}

// Record inserts one audit row.
func (r *UploadRepository) Record(rec *UploadRecord) error {
	return r.db.Create(rec).Error
}

// Recent returns the most recent records, newest first, up to limit.
func (r *UploadRepository) Recent(limit int) ([]UploadRecord, error) {
	var records []UploadRecord
	err := r.db.Order("timestamp desc").Limit(limit).Find(&records).Error
	return records, err
}

// LatestForChannel returns the most recent record for a channel, or
// gorm.ErrRecordNotFound if none exists.
func (r *UploadRepository) LatestForChannel(channel string) (*UploadRecord, error) {
	var rec UploadRecord
	err := r.db.Where("channel = ?", channel).Order("timestamp desc").First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Count returns the total number of audit rows.
func (r *UploadRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&UploadRecord{}).Count(&count).Error
	return count, err
}

// FailureCount returns the number of recorded failed uploads.
func (r *UploadRepository) FailureCount() (int64, error) {
	var count int64
	err := r.db.Model(&UploadRecord{}).Where("success = ?", false).Count(&count).Error
	return count, err
}
