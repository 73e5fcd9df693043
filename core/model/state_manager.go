// Package model provides state management and interfaces for remotely trained models.
package model

import (
	"sync"

	"github.com/YuminosukeSato/remoteglm/pkg/errors"
)

// StateManager tracks whether a remote model has been trained and under which key.
// Estimators hold it by composition.
type StateManager struct {
	mu sync.RWMutex

	Fitted   bool
	ModelKey string // key of the trained model on the engine

	// Shape of the training frame as reported by the engine.
	NFeatures int
	NSamples  int
}

// NewStateManager creates a new StateManager instance.
func NewStateManager() *StateManager {
	return &StateManager{}
}

// IsFitted returns whether the model has been fitted.
func (s *StateManager) IsFitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Fitted
}

// SetFitted marks the model as fitted under the given remote key.
func (s *StateManager) SetFitted(modelKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fitted = true
	s.ModelKey = modelKey
}

// Reset resets the fitted state.
func (s *StateManager) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fitted = false
	s.ModelKey = ""
	s.NFeatures = 0
	s.NSamples = 0
}

// SetDimensions sets the number of features and samples seen during fitting.
func (s *StateManager) SetDimensions(nFeatures, nSamples int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NFeatures = nFeatures
	s.NSamples = nSamples
}

// GetDimensions returns the number of features and samples seen during fitting.
func (s *StateManager) GetDimensions() (nFeatures, nSamples int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.NFeatures, s.NSamples
}

// Key returns the remote model key, empty before Fit.
func (s *StateManager) Key() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ModelKey
}

// RequireFitted returns a NotFittedError naming modelName and method if the model is not fitted.
func (s *StateManager) RequireFitted(modelName, method string) error {
	if !s.IsFitted() {
		return errors.NewNotFittedError(modelName, method)
	}
	return nil
}

// ModelState represents the complete state of a model, for reports and debugging.
type ModelState struct {
	Fitted    bool                   `json:"fitted"`
	ModelKey  string                 `json:"model_key,omitempty"`
	NFeatures int                    `json:"n_features,omitempty"`
	NSamples  int                    `json:"n_samples,omitempty"`
	Params    map[string]interface{} `json:"params,omitempty"`
}

// GetState returns the current state as a ModelState struct.
func (s *StateManager) GetState() ModelState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return ModelState{
		Fitted:    s.Fitted,
		ModelKey:  s.ModelKey,
		NFeatures: s.NFeatures,
		NSamples:  s.NSamples,
	}
}
