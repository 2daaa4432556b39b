package testutil

import (
	"context"
	"fmt"
	"testing"

	"ParableToVideo-server/models"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// DB opens a private in-memory sqlite database with the full schema.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })
	if err := models.AutoMigrate(db); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	return db
}

func Store(tb testing.TB) *models.Store {
	tb.Helper()
	return models.NewStore(DB(tb))
}

// SeedParable stores a draft parable with the given source text.
func SeedParable(tb testing.TB, s *models.Store, text string) *models.Parable {
	tb.Helper()
	p := &models.Parable{TitleOriginal: "The lost king", TextOriginal: text}
	if err := s.CreateParable(context.Background(), p); err != nil {
		tb.Fatalf("seed parable: %v", err)
	}
	return p
}

// SeedPrompts stores prompts for the given scene orders.
func SeedPrompts(tb testing.TB, s *models.Store, parableID string, orders ...int) []models.ScenePrompt {
	tb.Helper()
	prompts := make([]models.ScenePrompt, 0, len(orders))
	for _, o := range orders {
		prompts = append(prompts, models.ScenePrompt{
			SceneOrder: o,
			PromptText: fmt.Sprintf("scene %d", o),
		})
	}
	if err := s.SavePrompts(context.Background(), parableID, nil, prompts); err != nil {
		tb.Fatalf("seed prompts: %v", err)
	}
	return prompts
}

func Float(v float64) *float64 { return &v }
