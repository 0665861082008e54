package models

import "time"

// PredictionRecord is one stored classification result. Column names follow the
// Results table shared with the dashboard service.
type PredictionRecord struct {
	ID          uint      `gorm:"column:id;primaryKey" json:"id"`
	ImagePath   string    `gorm:"column:image_path" json:"image_path"`
	Prediction  string    `gorm:"column:prediction" json:"prediction"`
	Explanation string    `gorm:"column:explanation;type:text" json:"explanation"`
	CreatedAt   time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"column:updatedAt" json:"updatedAt"`
	UserID      *int64    `gorm:"column:UserId;index" json:"UserId"`
}

func (PredictionRecord) TableName() string {
	return "Results"
}

type ProcessingTimings struct {
	RequestID   string
	Upload      time.Duration
	ImageDecode time.Duration
	Resize      time.Duration
	Preprocess  time.Duration
	Inference   time.Duration
	Postprocess time.Duration
	Persist     time.Duration
	Total       time.Duration
	CacheHit    bool
}
