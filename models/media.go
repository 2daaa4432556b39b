package models

import "time"

const (
	AudioSourceUpload      = "upload"
	AudioSourceSynthesized = "synthesized"
)

// NarrationAudio is the single live narration track of a parable.
type NarrationAudio struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ParableID string    `gorm:"type:varchar(64);uniqueIndex" json:"parable_id"`
	AudioPath string    `gorm:"type:text" json:"audio_path"`
	Duration  float64   `json:"duration"`
	Source    string    `gorm:"type:varchar(16)" json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

func (NarrationAudio) TableName() string {
	return "narration_audio"
}

type VideoFragment struct {
	ID             string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ParableID      string    `gorm:"type:varchar(64);uniqueIndex:idx_fragment_parable_scene" json:"parable_id"`
	AssetID        *string   `gorm:"type:varchar(64)" json:"asset_id,omitempty"`
	SceneOrder     int       `gorm:"uniqueIndex:idx_fragment_parable_scene" json:"scene_order"`
	VideoPath      string    `gorm:"type:text" json:"video_path"`
	Duration       float64   `json:"duration"`
	TargetDuration *float64  `json:"target_duration,omitempty"`
	UploadedAt     time.Time `json:"uploaded_at"`
}

func (VideoFragment) TableName() string {
	return "video_fragments"
}
