// Package translation translates stored deals into the target language in
// the background.
package translation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PRYePR/moreyudeals-sub000/internal/models"
)

// Translator translates one piece of text.
type Translator interface {
	Name() string
	Translate(ctx context.Context, text, from, to string) (string, error)
}

// Store is the part of the deal store the worker uses.
type Store interface {
	GetUntranslated(ctx context.Context, limit int) ([]*models.Deal, error)
	UpdateTranslation(ctx context.Context, id string, fields models.TranslationFields, meta models.TranslationMeta) error
}

type Config struct {
	SourceLang string
	TargetLang string
	BatchSize  int
}

// Stats summarizes one worker pass.
type Stats struct {
	Processed int
	Completed int
	Failed    int
}

type Worker struct {
	store      Store
	translator Translator
	cfg        Config
	now        func() time.Time
}

func NewWorker(store Store, t Translator, cfg Config) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.SourceLang == "" {
		cfg.SourceLang = "de"
	}
	if cfg.TargetLang == "" {
		cfg.TargetLang = "en"
	}
	return &Worker{store: store, translator: t, cfg: cfg, now: time.Now}
}

// RunOnce translates one batch of pending deals. Per-deal failures are
// recorded on the deal; only store errors are returned.
func (w *Worker) RunOnce(ctx context.Context) (Stats, error) {
	var stats Stats
	deals, err := w.store.GetUntranslated(ctx, w.cfg.BatchSize)
	if err != nil {
		return stats, fmt.Errorf("failed to load untranslated deals: %w", err)
	}
	if len(deals) == 0 {
		slog.Debug("No deals awaiting translation")
		return stats, nil
	}

	for _, d := range deals {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		claim := models.TranslationMeta{Status: models.TranslationProcessing, Provider: w.translator.Name()}
		if err := w.store.UpdateTranslation(ctx, d.ID, models.TranslationFields{}, claim); err != nil {
			return stats, fmt.Errorf("failed to claim deal %s: %w", d.ID, err)
		}

		fields, meta := w.translate(ctx, d)
		// A claim is always settled, even after ctx is cancelled.
		release := context.WithoutCancel(ctx)
		if err := ctx.Err(); err != nil {
			pending := models.TranslationMeta{Status: models.TranslationPending}
			if rerr := w.store.UpdateTranslation(release, d.ID, models.TranslationFields{}, pending); rerr != nil {
				slog.Error("Failed to release translation claim", "id", d.ID, "error", rerr)
			}
			return stats, err
		}
		if err := w.store.UpdateTranslation(release, d.ID, fields, meta); err != nil {
			return stats, fmt.Errorf("failed to save translation of %s: %w", d.ID, err)
		}
		stats.Processed++
		if meta.Status == models.TranslationFailed {
			stats.Failed++
			slog.Warn("Translation failed", "id", d.ID, "error", meta.Error)
		} else {
			stats.Completed++
		}
	}
	slog.Info("Translation batch finished", "processed", stats.Processed, "completed", stats.Completed, "failed", stats.Failed)
	return stats, nil
}

// translate translates every non-empty field independently. The deal only
// fails when all attempted fields failed; partial results are kept.
func (w *Worker) translate(ctx context.Context, d *models.Deal) (models.TranslationFields, models.TranslationMeta) {
	var fields models.TranslationFields
	var errs []error
	attempted := 0

	one := func(text string) (string, bool) {
		attempted++
		out, err := w.translator.Translate(ctx, text, w.cfg.SourceLang, w.cfg.TargetLang)
		if err != nil {
			errs = append(errs, err)
			return "", false
		}
		return out, true
	}

	if strings.TrimSpace(d.Title) != "" {
		if t, ok := one(d.Title); ok {
			fields.Title = &t
		}
	}
	if strings.TrimSpace(d.Description) != "" {
		if t, ok := one(d.Description); ok {
			fields.Description = &t
		}
	}
	if hasText(d.ContentBlocks) {
		attempted++
		blocks, err := w.translateBlocks(ctx, d.ContentBlocks)
		if err != nil {
			errs = append(errs, err)
		} else {
			fields.ContentBlocks = blocks
		}
	}

	meta := models.TranslationMeta{
		Status:       models.TranslationCompleted,
		Provider:     w.translator.Name(),
		Language:     w.cfg.TargetLang,
		TranslatedAt: w.now(),
	}
	if attempted > 0 && len(errs) == attempted {
		meta.Status = models.TranslationFailed
		meta.Language = ""
		meta.TranslatedAt = time.Time{}
	}
	if len(errs) > 0 {
		meta.Error = errors.Join(errs...).Error()
	}
	return fields, meta
}

func hasText(blocks []models.ContentBlock) bool {
	for _, b := range blocks {
		if strings.TrimSpace(b.Text) != "" || len(b.Items) > 0 || b.Alt != "" {
			return true
		}
	}
	return false
}

// translateBlocks translates the text of every block and keeps the order. Any
// error fails the whole set so that no half-translated body is stored.
func (w *Worker) translateBlocks(ctx context.Context, blocks []models.ContentBlock) ([]models.ContentBlock, error) {
	out := make([]models.ContentBlock, len(blocks))
	for i, b := range blocks {
		out[i] = b
		if b.Type == models.BlockCode {
			continue
		}
		if strings.TrimSpace(b.Text) != "" {
			t, err := w.translator.Translate(ctx, b.Text, w.cfg.SourceLang, w.cfg.TargetLang)
			if err != nil {
				return nil, fmt.Errorf("content block %d: %w", i, err)
			}
			out[i].Text = t
		}
		if b.Alt != "" {
			t, err := w.translator.Translate(ctx, b.Alt, w.cfg.SourceLang, w.cfg.TargetLang)
			if err != nil {
				return nil, fmt.Errorf("content block %d alt: %w", i, err)
			}
			out[i].Alt = t
		}
		if len(b.Items) > 0 {
			items := make([]string, len(b.Items))
			for j, item := range b.Items {
				t, err := w.translator.Translate(ctx, item, w.cfg.SourceLang, w.cfg.TargetLang)
				if err != nil {
					return nil, fmt.Errorf("content block %d item %d: %w", i, j, err)
				}
				items[j] = t
			}
			out[i].Items = items
		}
	}
	return out, nil
}
