package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/oncology-therapy-mcp-server/internal/domain"
	"github.com/oncology-therapy-mcp-server/internal/service"
)

// Tool names exposed to MCP clients.
const (
	ToolRecommendTherapy = "recommend_therapy"
	ToolListSubtypes     = "list_subtypes"
	ToolNarrativePrompt  = "build_narrative_prompt"
)

// Recommender is the engine surface used by the MCP tools.
type Recommender interface {
	Recommend(ctx context.Context, raw map[string]any, cancerType domain.CancerType, opts ...service.RecommendOption) (*domain.Recommendation, error)
	Subtypes(ctx context.Context, cancerType domain.CancerType) ([]service.SubtypeSummary, error)
	Prompt(ctx context.Context, raw map[string]any, cancerType domain.CancerType, opts ...service.RecommendOption) (service.Prompt, error)
}

// Server represents the therapy recommendation MCP server
type Server struct {
	mcpServer   *mcp.Server
	recommender Recommender
	logger      *logrus.Logger
}

// NewServer creates a new MCP server instance and registers its tools.
func NewServer(cfg domain.MCPConfig, recommender Recommender, logger *logrus.Logger) *Server {
	serverInfo := &mcp.Implementation{
		Name:    cfg.ServerName,
		Version: cfg.ServerVersion,
	}

	s := &Server{
		mcpServer:   mcp.NewServer(serverInfo, nil),
		recommender: recommender,
		logger:      logger,
	}
	s.registerTools()

	return s
}

// Start serves MCP over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting oncology therapy MCP server on stdio")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: ToolRecommendTherapy,
		Description: "Recommend a tiered therapy plan for a breast or lung cancer patient from the " +
			"histological subtype and the genes altered in each category. Returns the curated plan, " +
			"matched biomarkers, clinical considerations and an AI narrative when one is configured.",
	}, s.handleRecommendTherapy)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolListSubtypes,
		Description: "List the curated subtypes of a cancer type and the therapy tiers each one supports.",
	}, s.handleListSubtypes)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: ToolNarrativePrompt,
		Description: "Build the clinical narrative prompt for a patient profile without calling a model, " +
			"so the client can generate the narrative itself.",
	}, s.handleNarrativePrompt)

	s.logger.WithField("tool_count", 3).Info("Registered MCP tools")
}
