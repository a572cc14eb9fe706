package ml

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"RegimeML/internal/domain/models"
)

// ArtifactSchemaVersion is bumped on any incompatible change to Artifact.
const ArtifactSchemaVersion = 1

// Artifact is the persisted form of a fitted Ensemble.
type Artifact struct {
	SchemaVersion  int           `json:"schema_version"`
	ID             string        `json:"id"`
	CreatedAt      time.Time     `json:"created_at"`
	FeatureColumns []string      `json:"feature_columns"`
	Classes        []string      `json:"classes"`
	Scaler         ScalerState   `json:"scaler"`
	Forest         ForestState   `json:"forest"`
	Boosting       BoostingState `json:"boosting"`
	Fitted         bool          `json:"fitted"`
	Training       TrainingInfo  `json:"training"`
}

type ScalerState struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

type ForestState struct {
	Trees []Tree `json:"trees"`
}

type BoostingState struct {
	Init         []float64 `json:"init"`
	LearningRate float64   `json:"learning_rate"`
	Stages       [][]Tree  `json:"stages"`
}

type TrainingInfo struct {
	Rows     int     `json:"rows"`
	Accuracy float64 `json:"accuracy"`
}

// Artifact snapshots a fitted ensemble.
func (e *Ensemble) Artifact() (*Artifact, error) {
	if !e.fitted {
		return nil, models.ErrNotFitted
	}
	return &Artifact{
		SchemaVersion:  ArtifactSchemaVersion,
		ID:             e.meta.ID,
		CreatedAt:      e.meta.CreatedAt,
		FeatureColumns: e.Columns(),
		Classes:        models.RegimeNames(),
		Scaler:         ScalerState{Mean: e.scaler.Mean(), Scale: e.scaler.Scale()},
		Forest:         ForestState{Trees: e.forest.Trees},
		Boosting: BoostingState{
			Init:         e.boosting.Init,
			LearningRate: e.boosting.LearningRate,
			Stages:       e.boosting.Stages,
		},
		Fitted:   true,
		Training: TrainingInfo{Rows: e.meta.TrainRows, Accuracy: e.meta.TrainAccuracy},
	}, nil
}

// MarshalArtifact encodes a fitted ensemble.
func MarshalArtifact(e *Ensemble) ([]byte, error) {
	a, err := e.Artifact()
	if err != nil {
		return nil, err
	}
	return json.Marshal(a)
}

// UnmarshalArtifact decodes and validates an artifact and rebuilds the
// ensemble it describes.
func UnmarshalArtifact(data []byte) (*Ensemble, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrArtifactSchema, err)
	}
	return FromArtifact(&a)
}

// FromArtifact validates a and returns a fitted ensemble. Any mismatch is
// reported as ErrArtifactSchema.
func FromArtifact(a *Artifact) (*Ensemble, error) {
	if err := a.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrArtifactSchema, err)
	}
	scaler, err := NewScaler(a.Scaler.Mean, a.Scaler.Scale)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrArtifactSchema, err)
	}
	return &Ensemble{
		columns:  append([]string(nil), a.FeatureColumns...),
		scaler:   scaler,
		forest:   &Forest{Trees: a.Forest.Trees, NClasses: len(a.Classes)},
		boosting: &Boosting{Init: a.Boosting.Init, LearningRate: a.Boosting.LearningRate, Stages: a.Boosting.Stages},
		fitted:   true,
		meta: Meta{
			ID:            a.ID,
			CreatedAt:     a.CreatedAt,
			TrainRows:     a.Training.Rows,
			TrainAccuracy: a.Training.Accuracy,
		},
	}, nil
}

func (a *Artifact) validate() error {
	if a.SchemaVersion != ArtifactSchemaVersion {
		return fmt.Errorf("schema version %d, want %d", a.SchemaVersion, ArtifactSchemaVersion)
	}
	if !a.Fitted {
		return fmt.Errorf("artifact is not marked fitted")
	}
	names := models.RegimeNames()
	if len(a.Classes) != len(names) {
		return fmt.Errorf("%d classes, want %d", len(a.Classes), len(names))
	}
	for i, c := range a.Classes {
		if c != names[i] {
			return fmt.Errorf("class %d is %q, want %q", i, c, names[i])
		}
	}
	nf := len(a.FeatureColumns)
	if nf == 0 {
		return fmt.Errorf("no feature columns")
	}
	if len(a.Scaler.Mean) != nf || len(a.Scaler.Scale) != nf {
		return fmt.Errorf("scaler has %d/%d values for %d features", len(a.Scaler.Mean), len(a.Scaler.Scale), nf)
	}
	if len(a.Forest.Trees) == 0 {
		return fmt.Errorf("forest has no trees")
	}
	for i := range a.Forest.Trees {
		if err := a.Forest.Trees[i].Validate(nf, len(names)); err != nil {
			return fmt.Errorf("forest tree %d: %w", i, err)
		}
	}
	if len(a.Boosting.Init) != len(names) {
		return fmt.Errorf("boosting init has %d values, want %d", len(a.Boosting.Init), len(names))
	}
	if len(a.Boosting.Stages) == 0 {
		return fmt.Errorf("boosting has no stages")
	}
	for s, stage := range a.Boosting.Stages {
		if len(stage) != len(names) {
			return fmt.Errorf("boosting stage %d has %d trees, want %d", s, len(stage), len(names))
		}
		for c := range stage {
			if err := stage[c].Validate(nf, 1); err != nil {
				return fmt.Errorf("boosting stage %d class %d: %w", s, c, err)
			}
		}
	}
	return nil
}
