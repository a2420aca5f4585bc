package bedrock

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/failure"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/model"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/suite"
)

const converseResponse = `{
  "output": {"message": {"role": "assistant", "content": [{"text": "{\"summary\":\"ok\",\"fields\":[]}"}]}},
  "stopReason": "end_turn",
  "usage": {"inputTokens": 20, "outputTokens": 6, "totalTokens": 26},
  "metrics": {"latencyMs": 40}
}`

type BedrockSuite struct {
	suite.Suite
	server *httptest.Server

	mu        sync.Mutex
	status    int
	errorType string
	body      string
	lastPath  string
	lastBody  map[string]any
}

func TestBedrockSuite(t *testing.T) {
	suite.Run(t, new(BedrockSuite))
}

func (s *BedrockSuite) SetupTest() {
	s.T().Setenv("AWS_ACCESS_KEY_ID", "AKIDTEST")
	s.T().Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	s.T().Setenv("AWS_REGION", "us-east-1")
	s.T().Setenv("AWS_PROFILE", "")

	s.status = http.StatusOK
	s.errorType = ""
	s.body = converseResponse
	s.lastPath = ""
	s.lastBody = nil
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.lastPath = r.URL.Path
		s.lastBody = nil
		_ = json.Unmarshal(raw, &s.lastBody)
		status, errorType, body := s.status, s.errorType, s.body
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if errorType != "" {
			w.Header().Set("X-Amzn-ErrorType", errorType)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func (s *BedrockSuite) TearDownTest() {
	s.server.Close()
}

func (s *BedrockSuite) request() (string, map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPath, s.lastBody
}

func (s *BedrockSuite) TestGenerateAppendsSchemaAndReadsText() {
	generator := NewGenerator(model.WithURL(s.server.URL), model.WithMaxTokens(256))

	output, meta, err := generator.Generate(context.Background(), model.GenerationRequest{
		SystemPrompt:   "system",
		Prompt:         "extract",
		ResponseSchema: model.JSONSchema{"type": "object"},
	})

	s.Require().NoError(err)
	s.Equal(`{"summary":"ok","fields":[]}`, output)

	path, body := s.request()
	s.True(strings.HasSuffix(path, "/converse"), path)
	raw, err := json.Marshal(body["messages"])
	s.Require().NoError(err)
	s.Contains(string(raw), "Return ONLY valid JSON that matches this schema")
	s.Contains(body, "system")

	s.Equal("bedrock", meta[model.MetadataKeyProvider])
	s.Equal("26", meta[model.MetadataKeyTotalTokens])
	s.Equal("end_turn", meta[model.MetadataKeyResponseStatus])
}

func (s *BedrockSuite) TestGenerateClassifiesThrottling() {
	s.status = http.StatusTooManyRequests
	s.errorType = "ThrottlingException"
	s.body = `{"message":"Too many requests, please wait before trying again."}`

	_, _, err := NewGenerator(model.WithURL(s.server.URL)).Generate(context.Background(), model.GenerationRequest{Prompt: "x"})

	s.Require().Error(err)
	s.Equal(failure.KindThrottled, failure.KindOf(err))
}

func (s *BedrockSuite) TestMissingCredentialsIsConfigurationError() {
	s.T().Setenv("AWS_ACCESS_KEY_ID", "")
	s.T().Setenv("AWS_SECRET_ACCESS_KEY", "")

	_, _, err := NewGenerator(model.WithURL(s.server.URL)).Generate(context.Background(), model.GenerationRequest{Prompt: "x"})

	s.Equal(failure.KindConfiguration, failure.KindOf(err))
	path, _ := s.request()
	s.Empty(path)
}

func (s *BedrockSuite) TestExtractTextSendsImageBlock() {
	s.body = `{"output":{"message":{"role":"assistant","content":[{"text":"Name: Jane"}]}},"stopReason":"end_turn"}`

	text, _, err := NewImageReader(model.WithURL(s.server.URL)).ExtractText(context.Background(), model.Image{
		Data:     []byte{0xff, 0xd8, 0xff},
		MIMEType: "image/jpeg",
	})

	s.Require().NoError(err)
	s.Equal("Name: Jane", text)
	_, body := s.request()
	raw, err := json.Marshal(body["messages"])
	s.Require().NoError(err)
	s.Contains(string(raw), `"format":"jpeg"`)
}

func (s *BedrockSuite) TestExtractTextRejectsUnsupportedImageType() {
	_, _, err := NewImageReader(model.WithURL(s.server.URL)).ExtractText(context.Background(), model.Image{
		Data:     []byte("II*"),
		MIMEType: "image/tiff",
	})

	s.Equal(failure.KindUnsupportedFormat, failure.KindOf(err))
}

func (s *BedrockSuite) TestClassifyErrorCodes() {
	quota := classifyError("op", &smithy.GenericAPIError{Code: "ServiceQuotaExceededException"})
	s.Equal(failure.KindQuotaExceeded, failure.KindOf(quota))

	denied := classifyError("op", &smithy.GenericAPIError{Code: "AccessDeniedException"})
	s.Equal(failure.KindConfiguration, failure.KindOf(denied))

	other := classifyError("op", &smithy.GenericAPIError{Code: "SomethingNew"})
	s.Equal(failure.KindUnknown, failure.KindOf(other))
	s.True(failure.IsRetryable(other))
}
