package models

import "time"

const (
	TitleTypeQuestion    = "question"
	TitleTypeIntrigue    = "intrigue"
	TitleTypeEmotion     = "emotion"
	TitleTypeNumbers     = "numbers"
	TitleTypeProvocation = "provocation"
)

type TitleVariant struct {
	ID          string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ParableID   string    `gorm:"type:varchar(64);index" json:"parable_id"`
	VariantText string    `gorm:"type:text" json:"variant_text"`
	VariantType string    `gorm:"type:varchar(32)" json:"variant_type"`
	IsSelected  bool      `json:"is_selected"`
	CreatedAt   time.Time `json:"created_at"`
}

func (TitleVariant) TableName() string {
	return "title_variants"
}
