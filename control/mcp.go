package control

import (
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/unsuggest/kit"
)

// RegisterMCP adds the unsuggest_status and unsuggest_set_enabled tools.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "unsuggest_status",
		Description: "Report whether Suggested-item filtering is enabled and the status of every watched page.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, s.status, func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{}, nil
	})

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "unsuggest_set_enabled",
		Description: "Enable or disable Suggested-item filtering on every watched page. The value is persisted.",
		InputSchema: inputSchema(map[string]any{
			"enabled": map[string]any{"type": "boolean", "description": "true to filter, false to stop"},
		}, []string{"enabled"}),
	}, s.setEnabled, func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r SetEnabledRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	})
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}
