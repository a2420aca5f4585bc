package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/extract"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/failure"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/logging"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/model"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/utils"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/samber/lo"
)

type toolClient interface {
	Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// RemoteExtractor runs extractions on another polyglot-extract instance reachable over
// the streamable HTTP transport.
type RemoteExtractor struct {
	mu     sync.Mutex
	client toolClient
}

func NewRemoteExtractor(ctx context.Context, serverURL string, authToken string) (*RemoteExtractor, error) {
	if strings.TrimSpace(serverURL) == "" {
		return nil, failure.New(failure.KindConfiguration, "mcp.NewRemoteExtractor", errors.New("server url is required"))
	}

	headers := map[string]string{}
	if authToken != "" {
		headers["Authorization"] = authToken
	}
	httpTransport, err := transport.NewStreamableHTTP(serverURL, transport.WithHTTPHeaders(headers))
	if err != nil {
		return nil, failure.New(failure.KindConfiguration, "mcp.NewRemoteExtractor", err)
	}

	c := client.NewClient(httpTransport)
	err = c.Start(ctx)
	if err != nil {
		return nil, failure.New(failure.KindUnavailable, "mcp.NewRemoteExtractor", err)
	}
	return connect(ctx, c)
}

func connect(ctx context.Context, c toolClient) (*RemoteExtractor, error) {
	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    "polyglot-extract remote client",
		Version: "1.0.0",
	}
	initRequest.Params.Capabilities = mcp.ClientCapabilities{}

	serverInfo, err := c.Initialize(ctx, initRequest)
	if err != nil {
		_ = c.Close()
		return nil, failure.New(failure.KindUnavailable, "mcp.connect", err)
	}
	if serverInfo == nil || serverInfo.Capabilities.Tools == nil {
		_ = c.Close()
		return nil, failure.New(failure.KindConfiguration, "mcp.connect", errors.New("server does not expose tools"))
	}
	return &RemoteExtractor{client: c}, nil
}

// ExtractTemplate sends src to the remote extract_record tool. Tool errors come back
// with their original kind so callers can apply the same retry rules as for local runs.
func (r *RemoteExtractor) ExtractTemplate(ctx context.Context, src extract.Source, templateID string) (*model.ExtractionResult, error) {
	const op = "mcp.RemoteExtractor.ExtractTemplate"
	log := logging.NewLogger(ctx)

	text, err := r.call(ctx, op, ExtractToolName, argumentsFor(src, templateID))
	if err != nil {
		log.Errorf("error: %v", err)
		return nil, err
	}

	var result model.ExtractionResult
	err = json.Unmarshal([]byte(text), &result)
	if err != nil {
		log.Errorf("error: %v", err)
		return nil, failure.New(failure.KindMalformedOutput, op, err)
	}
	return &result, nil
}

// ListTemplates returns the template ids the remote server accepts.
func (r *RemoteExtractor) ListTemplates(ctx context.Context) ([]string, error) {
	const op = "mcp.RemoteExtractor.ListTemplates"
	text, err := r.call(ctx, op, ListTemplatesToolName, map[string]any{})
	if err != nil {
		return nil, err
	}
	var ids []string
	err = json.Unmarshal([]byte(text), &ids)
	if err != nil {
		return nil, failure.New(failure.KindMalformedOutput, op, err)
	}
	return ids, nil
}

func (r *RemoteExtractor) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return utils.WrapIfNotNil(err)
}

func (r *RemoteExtractor) call(ctx context.Context, op string, tool string, args map[string]any) (string, error) {
	r.mu.Lock()
	c := r.client
	r.mu.Unlock()
	if c == nil {
		return "", failure.New(failure.KindConfiguration, op, errors.New("remote extractor is closed"))
	}

	result, err := c.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: tool, Arguments: args},
	})
	if err != nil {
		return "", failure.Classify(err)
	}
	if result == nil {
		return "", failure.New(failure.KindMalformedOutput, op, errors.New("empty tool result"))
	}

	text := resultText(result)
	if result.IsError {
		return "", remoteError(op, text)
	}
	return text, nil
}

func resultText(result *mcp.CallToolResult) string {
	parts := lo.FilterMap(result.Content, func(content mcp.Content, _ int) (string, bool) {
		text, ok := content.(mcp.TextContent)
		return text.Text, ok
	})
	return strings.Join(parts, "\n")
}

// remoteError rebuilds a failure from the "<kind>: <message>" text the server returns.
func remoteError(op string, text string) error {
	name, message, found := strings.Cut(text, ":")
	kind := failure.KindUnknown
	if found {
		kind = failure.ParseKind(name)
	}
	if kind == failure.KindUnknown {
		message = text
	}
	return failure.New(kind, op, errors.New(strings.TrimSpace(message)))
}

func argumentsFor(src extract.Source, templateID string) map[string]any {
	args := map[string]any{"template_id": templateID}
	if src.FileName != "" {
		args["file_name"] = src.FileName
	}
	switch src.Kind {
	case extract.SourceAudio:
		args["audio_base64"] = base64.StdEncoding.EncodeToString(src.Data)
		if len(src.Keywords) > 0 {
			args["keywords"] = lo.Map(src.Keywords, func(k model.AudioKeyword, _ int) string {
				return k.Word
			})
		}
	case extract.SourceImage:
		args["image_base64"] = base64.StdEncoding.EncodeToString(src.Data)
	default:
		args["text"] = src.Text
	}
	return args
}
