package predictor

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/edgard/cropwise/internal/crop"
	apperrors "github.com/edgard/cropwise/internal/errors"
)

// ArtifactFormat is the only artifact format LoadModel understands.
const ArtifactFormat = "sklearn-tree/v1"

const leaf = -1

// Artifact is the JSON export of a fitted scikit-learn tree classifier.
// Trees holds one entry for a DecisionTreeClassifier and one per estimator
// for a RandomForestClassifier.
type Artifact struct {
	Format       string   `json:"format"`
	Estimator    string   `json:"estimator,omitempty"`
	FeatureNames []string `json:"feature_names,omitempty"`
	Classes      []string `json:"classes"`
	Trees        []Tree   `json:"trees"`
}

// Tree mirrors the parallel node arrays of sklearn's tree_ attribute.
// Value is flattened to one row of class weights per node.
type Tree struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Value         [][]float64 `json:"value"`
}

// TreeModel is a validated, read-only tree ensemble.
type TreeModel struct {
	classes   []string
	trees     []Tree
	estimator string
}

// LoadModel reads and validates the artifact at path. Every failure is a
// StartupError.
func LoadModel(path string) (*TreeModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewStartupError("failed to read model artifact", err)
	}

	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, apperrors.NewStartupError("failed to decode model artifact", err)
	}

	model, err := NewTreeModel(artifact)
	if err != nil {
		return nil, apperrors.NewStartupError(fmt.Sprintf("invalid model artifact %s", path), err)
	}

	return model, nil
}

// NewTreeModel validates artifact and returns a model ready for prediction.
func NewTreeModel(artifact Artifact) (*TreeModel, error) {
	if artifact.Format != ArtifactFormat {
		return nil, fmt.Errorf("unsupported format %q, want %q", artifact.Format, ArtifactFormat)
	}
	if len(artifact.Classes) == 0 {
		return nil, errors.New("artifact has no classes")
	}
	if len(artifact.Trees) == 0 {
		return nil, errors.New("artifact has no trees")
	}
	if len(artifact.FeatureNames) > 0 {
		if len(artifact.FeatureNames) != crop.NumFeatures {
			return nil, fmt.Errorf("artifact expects %d features, want %d", len(artifact.FeatureNames), crop.NumFeatures)
		}
		for i, name := range artifact.FeatureNames {
			if name != crop.FeatureNames[i] {
				return nil, fmt.Errorf("feature %d is %q, want %q", i, name, crop.FeatureNames[i])
			}
		}
	}

	for i, tree := range artifact.Trees {
		if err := validateTree(tree, len(artifact.Classes)); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
	}

	return &TreeModel{
		classes:   artifact.Classes,
		trees:     artifact.Trees,
		estimator: artifact.Estimator,
	}, nil
}

func validateTree(t Tree, numClasses int) error {
	n := len(t.ChildrenLeft)
	if n == 0 {
		return errors.New("tree has no nodes")
	}
	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return errors.New("node arrays differ in length")
	}

	for i := 0; i < n; i++ {
		left, right := t.ChildrenLeft[i], t.ChildrenRight[i]
		if (left == leaf) != (right == leaf) {
			return fmt.Errorf("node %d has exactly one child", i)
		}
		if left != leaf {
			if left <= i || left >= n || right <= i || right >= n {
				return fmt.Errorf("node %d has child index out of range", i)
			}
			if t.Feature[i] < 0 || t.Feature[i] >= crop.NumFeatures {
				return fmt.Errorf("node %d splits on unknown feature %d", i, t.Feature[i])
			}
			if math.IsNaN(t.Threshold[i]) {
				return fmt.Errorf("node %d has NaN threshold", i)
			}
		}
		if len(t.Value[i]) != numClasses {
			return fmt.Errorf("node %d has %d class weights, want %d", i, len(t.Value[i]), numClasses)
		}
	}

	return nil
}

// Classes returns the labels the model can produce.
func (m *TreeModel) Classes() []string {
	out := make([]string, len(m.classes))
	copy(out, m.classes)

	return out
}

// Trees returns the number of trees in the ensemble.
func (m *TreeModel) Trees() int { return len(m.trees) }

// Estimator names the exported estimator, if the artifact recorded it.
func (m *TreeModel) Estimator() string { return m.estimator }

// Classify walks every tree and returns the class with the highest mean
// normalized leaf weight. Ties go to the earliest class.
func (m *TreeModel) Classify(features [crop.NumFeatures]float64) (string, error) {
	for i, x := range features {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return "", fmt.Errorf("feature %s is not finite", crop.FeatureNames[i])
		}
	}

	proba := make([]float64, len(m.classes))
	for ti, tree := range m.trees {
		row, err := tree.leafValue(features)
		if err != nil {
			return "", fmt.Errorf("tree %d: %w", ti, err)
		}

		var total float64
		for _, w := range row {
			total += w
		}
		if total <= 0 {
			return "", fmt.Errorf("tree %d: leaf has no weight", ti)
		}
		for c, w := range row {
			proba[c] += w / total
		}
	}

	best := 0
	for c := 1; c < len(proba); c++ {
		if proba[c] > proba[best] {
			best = c
		}
	}

	return m.classes[best], nil
}

func (t Tree) leafValue(features [crop.NumFeatures]float64) ([]float64, error) {
	node := 0
	for steps := 0; steps <= len(t.ChildrenLeft); steps++ {
		if t.ChildrenLeft[node] == leaf {
			return t.Value[node], nil
		}
		if features[t.Feature[node]] <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}

	return nil, errors.New("walk did not reach a leaf")
}
