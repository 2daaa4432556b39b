package models

import "time"

var Moods = []string{"dramatic", "calm", "motivational", "mystical", "inspiring", "sad", "joyful"}

// IsMood reports whether m is one of the supported music moods.
func IsMood(m string) bool {
	for _, v := range Moods {
		if v == m {
			return true
		}
	}
	return false
}

// MusicTrack is shared across parables and never owned by one.
type MusicTrack struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name      string    `gorm:"type:varchar(255)" json:"name"`
	FilePath  string    `gorm:"type:varchar(512);uniqueIndex" json:"file_path"`
	Mood      string    `gorm:"type:varchar(32);index" json:"mood"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func (MusicTrack) TableName() string {
	return "music_tracks"
}

type MusicAssignment struct {
	ID           string      `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ParableID    string      `gorm:"type:varchar(64);uniqueIndex" json:"parable_id"`
	MusicTrackID string      `gorm:"type:varchar(64)" json:"music_track_id"`
	VolumeDB     float64     `json:"volume_db"`
	Track        *MusicTrack `gorm:"-" json:"track,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

func (MusicAssignment) TableName() string {
	return "music_assignments"
}
