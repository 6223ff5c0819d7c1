// Package settingsstore provides a typed accessor over the flat string
// key/value settings map persisted in the store and read at runtime by
// every service.
package settingsstore

import (
	"strconv"
)

// Backing is the minimal persistence contract settingsstore needs; the
// store package's *Store satisfies it without settingsstore importing store
// (keeps this package usable from tests with a fake).
type Backing interface {
	GetSetting(key string) (string, bool, error)
	SetSetting(key, value string) error
}

// Store is the typed accessor. All getters fall back to the supplied
// default when the key is unset or unparsable, never erroring: a bad or
// missing setting degrades to default behavior rather than failing a
// request.
type Store struct {
	backing Backing
}

// New wraps a Backing with typed accessors.
func New(backing Backing) *Store {
	return &Store{backing: backing}
}

// Bool keys
const (
	KeyEmbeddingEnabled               = "embeddingEnabled"
	KeyInferenceServiceEnabled        = "inferenceServiceEnabled"
	KeyInferenceEmbedOffloadEnabled   = "inferenceEmbedOffloadEnabled"
	KeyInferenceRerankOffloadEnabled  = "inferenceRerankOffloadEnabled"
	KeyInferenceQaOffloadEnabled      = "inferenceQaOffloadEnabled"
	KeyInferenceShadowModeEnabled     = "inferenceShadowModeEnabled"
	KeyQueryRouterEnabled             = "queryRouterEnabled"
	KeyFastEmbeddingEnabled           = "fastEmbeddingEnabled"
	KeyDualEmbeddingFusionEnabled     = "dualEmbeddingFusionEnabled"
	KeyRerankerCascadeEnabled         = "rerankerCascadeEnabled"
	KeyAutoVectorMigration            = "autoVectorMigration"
	KeyQaSnippetEnabled               = "qaSnippetEnabled"
	KeyPersonalizedLtrEnabled         = "personalizedLtrEnabled"
	KeyBehaviorStreamEnabled          = "behaviorStreamEnabled"
	KeyLearningEnabled                = "learningEnabled"
	KeyLearningPauseOnUserInput       = "learningPauseOnUserInput"
)

// Numeric / string keys
const (
	KeyQueryRouterMinConfidence = "queryRouterMinConfidence"
	KeyStrongEmbeddingTopK      = "strongEmbeddingTopK"
	KeyFastEmbeddingTopK        = "fastEmbeddingTopK"
	KeyRerankerStage1Max        = "rerankerStage1Max"
	KeyRerankerStage2Max        = "rerankerStage2Max"
	KeyBM25WeightName           = "bm25WeightName"
	KeyBM25WeightPath           = "bm25WeightPath"
	KeyBM25WeightContent        = "bm25WeightContent"
	KeyOnlineRankerRolloutMode  = "onlineRankerRolloutMode"
	KeyOnlineRankerBlendAlpha   = "onlineRankerBlendAlpha"
	KeyOnlineRankerMinExamples  = "onlineRankerMinExamples"
	KeyOnlineRankerEpochs       = "onlineRankerEpochs"
	KeyOnlineRankerLearningRate = "onlineRankerLearningRate"
	KeyBehaviorRawRetentionDays = "behaviorRawRetentionDays"
	KeySemanticBudgetMs         = "semanticBudgetMs"
	KeyRerankBudgetMs           = "rerankBudgetMs"
	KeyMaxFileSize              = "max_file_size"
	KeyExtractionTimeoutMs      = "extraction_timeout_ms"
	// Negative sampling ratio for learning-cycle batch composition.
	KeyLearningNegativeSampleRatio = "learningNegativeSampleRatio"
)

// GetBool returns the boolean value of key, or def if unset/unparsable.
func (s *Store) GetBool(key string, def bool) bool {
	raw, ok, err := s.backing.GetSetting(key)
	if err != nil || !ok {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

// GetFloat returns the float64 value of key, or def if unset/unparsable.
func (s *Store) GetFloat(key string, def float64) float64 {
	raw, ok, err := s.backing.GetSetting(key)
	if err != nil || !ok {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}

// GetInt returns the int value of key, or def if unset/unparsable.
func (s *Store) GetInt(key string, def int) int {
	raw, ok, err := s.backing.GetSetting(key)
	if err != nil || !ok {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// GetString returns the string value of key, or def if unset.
func (s *Store) GetString(key, def string) string {
	raw, ok, err := s.backing.GetSetting(key)
	if err != nil || !ok {
		return def
	}
	return raw
}

// SetBool persists a boolean setting.
func (s *Store) SetBool(key string, v bool) error {
	return s.backing.SetSetting(key, strconv.FormatBool(v))
}

// SetFloat persists a float setting.
func (s *Store) SetFloat(key string, v float64) error {
	return s.backing.SetSetting(key, strconv.FormatFloat(v, 'g', -1, 64))
}

// SetInt persists an int setting.
func (s *Store) SetInt(key string, v int) error {
	return s.backing.SetSetting(key, strconv.Itoa(v))
}

// SetString persists a string setting.
func (s *Store) SetString(key, v string) error {
	return s.backing.SetSetting(key, v)
}
