package models

import "time"

// HookSceneOrder is reserved for the hook prompt and sorts before story scenes.
const HookSceneOrder = -1

type ScenePrompt struct {
	ID              string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ParableID       string    `gorm:"type:varchar(64);uniqueIndex:idx_prompt_parable_scene" json:"parable_id"`
	SceneOrder      int       `gorm:"uniqueIndex:idx_prompt_parable_scene" json:"scene_order"`
	PromptText      string    `gorm:"type:text" json:"prompt_text"`
	VideoPromptText string    `gorm:"type:text" json:"video_prompt_text"`
	CreatedAt       time.Time `json:"created_at"`
}

func (ScenePrompt) TableName() string {
	return "scene_prompts"
}

type SceneAsset struct {
	ID         string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ParableID  string    `gorm:"type:varchar(64);uniqueIndex:idx_asset_parable_scene" json:"parable_id"`
	PromptID   string    `gorm:"type:varchar(64);index" json:"prompt_id"`
	SceneOrder int       `gorm:"uniqueIndex:idx_asset_parable_scene" json:"scene_order"`
	ImagePath  string    `gorm:"type:text" json:"image_path"`
	CreatedAt  time.Time `json:"created_at"`
}

func (SceneAsset) TableName() string {
	return "scene_assets"
}
