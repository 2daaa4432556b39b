package models

import "time"

// Status is the externally visible lifecycle of a parable.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusProcessing      Status = "processing"
	StatusAwaitingAudio   Status = "awaiting_audio"
	StatusGeneratingFinal Status = "generating_final"
	StatusCompleted       Status = "completed"
	StatusError           Status = "error"
)

// Pipeline step indexes persisted in current_step. 0 means not started.
const (
	StepNotStarted = 0
	StepRewrite    = 1
	StepMetadata   = 2
	StepAssets     = 3
	StepAudio      = 4
	StepFinalize   = 5
)

// Stage is the fine grained checkpoint written alongside current_step.
type Stage string

const (
	StageNotStarted          Stage = "not_started"
	StageRewriting           Stage = "rewriting"
	StageDerivingMetadata    Stage = "deriving_metadata"
	StageGeneratingAssets    Stage = "generating_assets"
	StageHealingAssets       Stage = "healing_assets"
	StageAwaitingAudio       Stage = "awaiting_audio"
	StageFinalizing          Stage = "finalizing"
	StageAwaitingAudioUpload Stage = "awaiting_audio_upload"
	StageGeneratingFinal     Stage = "generating_final"
	StageCompleted           Stage = "completed"
	StageFailed              Stage = "failed"
)

// StageForStep maps a step index to the stage entered when it starts.
func StageForStep(step int) Stage {
	switch step {
	case StepRewrite:
		return StageRewriting
	case StepMetadata:
		return StageDerivingMetadata
	case StepAssets:
		return StageGeneratingAssets
	case StepAudio:
		return StageAwaitingAudio
	case StepFinalize:
		return StageFinalizing
	default:
		return StageNotStarted
	}
}

var transitions = map[Status][]Status{
	StatusDraft:           {StatusProcessing},
	StatusProcessing:      {StatusAwaitingAudio, StatusError},
	StatusAwaitingAudio:   {StatusProcessing, StatusGeneratingFinal},
	StatusGeneratingFinal: {StatusCompleted, StatusError},
	StatusCompleted:       {StatusProcessing, StatusGeneratingFinal},
	StatusError:           {StatusProcessing, StatusGeneratingFinal},
}

// CanTransition reports whether to is a valid successor of from.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Parable is the aggregate root. A localized variant is another Parable row
// whose OriginalID points at the source parable.
type Parable struct {
	ID         string  `gorm:"primaryKey;type:varchar(64)" json:"id"`
	OriginalID *string `gorm:"type:varchar(64);uniqueIndex" json:"original_id,omitempty"`
	Language   string  `gorm:"type:varchar(16)" json:"language,omitempty"`

	TitleOriginal string `gorm:"type:text" json:"title_original"`
	TextOriginal  string `gorm:"type:text" json:"text_original"`

	HookText           string `gorm:"type:text" json:"hook_text,omitempty"`
	TextForTTS         string `gorm:"type:text" json:"text_for_tts,omitempty"`
	YoutubeTitle       string `gorm:"type:text" json:"youtube_title,omitempty"`
	YoutubeDescription string `gorm:"type:text" json:"youtube_description,omitempty"`
	YoutubeHashtags    string `gorm:"type:text" json:"youtube_hashtags,omitempty"`

	Status       Status   `gorm:"type:varchar(32);index" json:"status"`
	Stage        Stage    `gorm:"type:varchar(32)" json:"stage"`
	CurrentStep  int      `json:"current_step"`
	ErrorMessage string   `gorm:"type:text" json:"error_message,omitempty"`
	Failure      *Failure `gorm:"type:json" json:"failure,omitempty"`

	FinalVideoPath     string  `gorm:"type:text" json:"final_video_path,omitempty"`
	FinalVideoDuration float64 `json:"final_video_duration,omitempty"`
	FinalVideoURL      string  `gorm:"type:text" json:"final_video_url,omitempty"`

	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Parable) TableName() string {
	return "parables"
}

// IsTranslation reports whether the parable is a localized variant.
func (p *Parable) IsTranslation() bool {
	return p.OriginalID != nil && *p.OriginalID != ""
}

// ParableDetail is a parable with every owned child collection loaded.
type ParableDetail struct {
	Parable
	Prompts       []ScenePrompt    `json:"scene_prompts"`
	Assets        []SceneAsset     `json:"scene_assets"`
	Audio         *NarrationAudio  `json:"audio,omitempty"`
	Fragments     []VideoFragment  `json:"video_fragments"`
	TitleVariants []TitleVariant   `json:"title_variants"`
	Music         *MusicAssignment `json:"music,omitempty"`
}
