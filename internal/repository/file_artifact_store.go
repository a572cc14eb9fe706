package repository

import (
	"context"
	"errors"
	"fmt"
	"os"

	"RegimeML/internal/services/ml"
	applogger "RegimeML/pkg/logger"
	"RegimeML/pkg/util"
)

// FileArtifactStore persists fitted ensembles as JSON documents on disk.
type FileArtifactStore struct {
	l *applogger.Logger
}

func NewFileArtifactStore() *FileArtifactStore {
	return &FileArtifactStore{}
}

// SetLogger injects a structured logger.
func (s *FileArtifactStore) SetLogger(l *applogger.Logger) { s.l = l }

// Save writes m to path atomically: a reader sees either the previous file or
// the complete new one.
func (s *FileArtifactStore) Save(ctx context.Context, m *ml.Ensemble, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := ml.MarshalArtifact(m)
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	if err := util.WriteFileAtomic(path, data, 0o644); err != nil {
		s.logError("artifact save error", path, err)
		return fmt.Errorf("save artifact: %w", err)
	}
	if s.l != nil {
		s.l.Info("artifact saved",
			applogger.String("path", path),
			applogger.String("model_id", m.Meta().ID),
			applogger.Int("bytes", len(data)))
	}
	return nil
}

// Load reads and validates the artifact at path.
func (s *FileArtifactStore) Load(ctx context.Context, path string) (*ml.Ensemble, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("artifact %s not found: %w", path, err)
		}
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	m, err := ml.UnmarshalArtifact(data)
	if err != nil {
		s.logError("artifact load error", path, err)
		return nil, err
	}
	if s.l != nil {
		s.l.Info("artifact loaded",
			applogger.String("path", path),
			applogger.String("model_id", m.Meta().ID),
			applogger.Strings("columns", m.Columns()))
	}
	return m, nil
}

func (s *FileArtifactStore) logError(msg, path string, err error) {
	if s.l != nil {
		s.l.Error(msg, applogger.String("path", path), applogger.Error(err))
	}
}
