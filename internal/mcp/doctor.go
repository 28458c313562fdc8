package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type doctorParams struct{}

func (h *handler) doctorHandler(ctx context.Context, req *mcp.CallToolRequest, _ doctorParams) (*mcp.CallToolResult, any, error) {
	return h.jsonResult(h.engine.Doctor(ctx, h.lookPath))
}
