package ports

import (
	"context"

	"github.com/sanjai-web/Micro-Plastic-Detection/internal/domain"
)

// Classifier maps a reading level to a classification. Implementations return an
// error instead of a partial result.
type Classifier interface {
	Classify(ctx context.Context, level float64, cat domain.Category) (domain.ClassificationResult, error)
}

// Completer sends a text prompt to a language model and returns the raw reply text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Name() string
}
