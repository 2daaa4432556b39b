package service

import (
	"context"
	"strings"

	"ParableToVideo-server/apperr"
	"ParableToVideo-server/logger"
	"ParableToVideo-server/models"
)

const DefaultLanguage = "en"

// TranslationService creates localized variants of processed parables.
type TranslationService struct {
	store *models.Store
	synth *Synthesizer
	log   *logger.Logger
}

func NewTranslationService(store *models.Store, synth *Synthesizer, log *logger.Logger) *TranslationService {
	return &TranslationService{store: store, synth: synth, log: log.With("service", "TranslationService")}
}

// Create translates the original's title and text into a new draft unit.
// An original has at most one translation.
func (t *TranslationService) Create(ctx context.Context, originalID, language string) (*models.Parable, error) {
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" {
		language = DefaultLanguage
	}
	orig, err := t.store.GetParable(ctx, originalID)
	if err != nil {
		return nil, err
	}
	if orig.IsTranslation() {
		return nil, apperr.Validation("parable %s is itself a translation", originalID)
	}
	if orig.TextForTTS == "" {
		return nil, apperr.Validation("original parable must be processed first")
	}
	if _, err := t.store.GetTranslation(ctx, originalID); err == nil {
		return nil, apperr.Conflict("parable %s already has a translation", originalID)
	} else if !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}

	tr, err := t.synth.Translate(ctx, orig.TitleOriginal, orig.TextOriginal, language)
	if err != nil {
		return nil, err
	}
	unit := &models.Parable{
		OriginalID:    &orig.ID,
		Language:      language,
		TitleOriginal: tr.Title,
		TextOriginal:  tr.Text,
	}
	if err := t.store.CreateParable(ctx, unit); err != nil {
		if _, gerr := t.store.GetTranslation(ctx, originalID); gerr == nil {
			return nil, apperr.Conflict("parable %s already has a translation", originalID)
		}
		return nil, err
	}
	t.log.Info("translation created", "original_id", originalID, "parable_id", unit.ID, "language", language)
	return unit, nil
}
