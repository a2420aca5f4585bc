// Package mcp exposes the extraction pipeline as MCP tools and calls remote extraction
// servers over streamable HTTP.
package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/extract"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/failure"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/logging"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/model"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/utils"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

const (
	ExtractToolName       = "extract_record"
	ListTemplatesToolName = "list_templates"

	serverName = "polyglot-extract"
)

// Extractor is the slice of extract.Pipeline the server needs.
type Extractor interface {
	ExtractTemplate(ctx context.Context, src extract.Source, templateID string) (*model.ExtractionResult, error)
	TemplateIDs() []string
}

// NewServer registers the extraction tools on a new MCP server.
func NewServer(extractor Extractor, version string) *server.MCPServer {
	s := server.NewMCPServer(serverName, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	h := &handlers{extractor: extractor}
	s.AddTool(extractTool(), h.extractRecord)
	s.AddTool(mcp.NewTool(ListTemplatesToolName,
		mcp.WithDescription("List the template ids that extract_record accepts."),
	), h.listTemplates)
	return s
}

func extractTool() mcp.Tool {
	return mcp.NewTool(ExtractToolName,
		mcp.WithDescription("Extract a structured record from text, audio or an image using a registered template. Provide exactly one of text, audio_base64 or image_base64."),
		mcp.WithString("template_id", mcp.Required(), mcp.Description("Id of the template describing the fields to extract.")),
		mcp.WithString("text", mcp.Description("Plain text source.")),
		mcp.WithString("audio_base64", mcp.Description("Base64 encoded audio recording.")),
		mcp.WithString("image_base64", mcp.Description("Base64 encoded image of a form or document.")),
		mcp.WithString("file_name", mcp.Description("Original file name; its extension helps identify the format.")),
		mcp.WithArray("keywords",
			mcp.Description("Domain terms the transcriber should favor."),
			mcp.Items(map[string]any{"type": "string"}),
		),
	)
}

// ServeStdio blocks until ctx is done or in closes.
func ServeStdio(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer) error {
	log := logging.NewLogger(ctx)
	log.Infof("serving MCP over stdio")
	err := server.NewStdioServer(s).Listen(ctx, in, out)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("error: %v", err)
		return utils.WrapIfNotNil(err)
	}
	return nil
}

// ServeHTTP serves the streamable HTTP transport on addr until ctx is done.
func ServeHTTP(ctx context.Context, s *server.MCPServer, addr string) error {
	log := logging.NewLogger(ctx)
	httpServer := server.NewStreamableHTTPServer(s)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("serving MCP over HTTP on %s", addr)
		err := httpServer.Start(addr)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		return httpServer.Shutdown(context.Background())
	})

	err := g.Wait()
	if err != nil {
		log.Errorf("error: %v", err)
	}
	return utils.WrapIfNotNil(err)
}

type handlers struct {
	extractor Extractor
}

func (h *handlers) extractRecord(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	log := logging.NewLogger(ctx)

	templateID, err := request.RequireString("template_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	src, err := sourceFromRequest(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := h.extractor.ExtractTemplate(ctx, src, templateID)
	if err != nil {
		log.Errorf("error: %v", err)
		// The kind lets the caller decide whether to resend.
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", failure.KindOf(err), err)), nil
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	return mcp.NewToolResultText(string(payload)), nil
}

func (h *handlers) listTemplates(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids := h.extractor.TemplateIDs()
	if ids == nil {
		ids = []string{}
	}
	payload, err := json.Marshal(ids)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	return mcp.NewToolResultText(string(payload)), nil
}

func sourceFromRequest(request mcp.CallToolRequest) (extract.Source, error) {
	text := request.GetString("text", "")
	audioB64 := strings.TrimSpace(request.GetString("audio_base64", ""))
	imageB64 := strings.TrimSpace(request.GetString("image_base64", ""))
	fileName := strings.TrimSpace(request.GetString("file_name", ""))

	provided := lo.Filter([]string{text, audioB64, imageB64}, func(v string, _ int) bool {
		return strings.TrimSpace(v) != ""
	})
	if len(provided) != 1 {
		return extract.Source{}, errors.New("exactly one of text, audio_base64 or image_base64 is required")
	}

	switch {
	case audioB64 != "":
		data, err := base64.StdEncoding.DecodeString(audioB64)
		if err != nil {
			return extract.Source{}, fmt.Errorf("audio_base64: %w", err)
		}
		keywords := lo.Map(request.GetStringSlice("keywords", nil), func(word string, _ int) model.AudioKeyword {
			return model.AudioKeyword{Word: word}
		})
		return extract.AudioSource(data, fileName, model.NormalizeKeywords(keywords)...), nil
	case imageB64 != "":
		data, err := base64.StdEncoding.DecodeString(imageB64)
		if err != nil {
			return extract.Source{}, fmt.Errorf("image_base64: %w", err)
		}
		return extract.ImageSource(data, fileName), nil
	default:
		return extract.TextSource(text), nil
	}
}
