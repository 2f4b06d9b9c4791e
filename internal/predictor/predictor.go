// Package predictor turns an input vector into a crop recommendation using a
// pre-trained classifier loaded once at startup.
package predictor

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/edgard/cropwise/internal/crop"
	apperrors "github.com/edgard/cropwise/internal/errors"
)

// Classifier maps a feature vector in crop.FeatureNames order to a label.
// Implementations must be safe for concurrent use and must not mutate state.
type Classifier interface {
	Classify(features [crop.NumFeatures]float64) (string, error)
}

// Recommendation is the outcome of one prediction.
type Recommendation struct {
	Input   crop.InputVector `json:"input"`
	Label   string           `json:"label"`
	Display string           `json:"display"`
}

// Predictor validates input vectors and delegates to a Classifier.
type Predictor struct {
	classifier Classifier
	logger     *zap.Logger
}

// New returns a Predictor backed by classifier.
func New(classifier Classifier, logger *zap.Logger) *Predictor {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Predictor{
		classifier: classifier,
		logger:     logger.Named("predictor"),
	}
}

// Predict returns the recommended crop for v. The result depends only on v
// and the loaded model. Failures are PredictionErrors.
func (p *Predictor) Predict(v crop.InputVector) (Recommendation, error) {
	if err := v.Validate(); err != nil {
		return Recommendation{}, apperrors.NewPredictionError("input out of range", err)
	}

	label, err := p.classifier.Classify(v.Features())
	if err != nil {
		p.logger.Error("classifier failed", zap.Any("input", v), zap.Error(err))
		return Recommendation{}, apperrors.NewPredictionError("classifier failed", err)
	}

	label = strings.TrimSpace(label)
	if label == "" {
		p.logger.Error("classifier returned empty label", zap.Any("input", v))
		return Recommendation{}, apperrors.NewPredictionError("classifier returned empty label", nil)
	}

	rec := Recommendation{
		Input:   v,
		Label:   label,
		Display: DisplayLabel(label),
	}
	p.logger.Debug("prediction complete", zap.Any("input", v), zap.String("label", label))

	return rec, nil
}

// DisplayLabel normalizes a label for display.
func DisplayLabel(label string) string {
	return strings.ToUpper(label)
}

// Headline is the one-line result shown by every surface.
func (r Recommendation) Headline() string {
	return fmt.Sprintf("Recommended Crop: %s", r.Display)
}
