package domain

import (
	"context"
)

// KnowledgeBaseSource fetches the raw curated document for a cancer type.
// Implementations return an error wrapping ErrNotFound when no document exists.
type KnowledgeBaseSource interface {
	Fetch(ctx context.Context, cancerType CancerType) ([]byte, error)
	Name() string
}

// KnowledgeBaseProvider returns validated, cached knowledge bases.
type KnowledgeBaseProvider interface {
	Load(ctx context.Context, cancerType CancerType) (*KnowledgeBase, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetLLMConfig() *LLMConfig
	GetKnowledgeBaseConfig() *KnowledgeBaseConfig
	Validate() error
}
