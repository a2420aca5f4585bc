package mcp

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/extract"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/failure"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/model"
	"github.com/mark3labs/mcp-go/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExtractor struct {
	mu       sync.Mutex
	result   *model.ExtractionResult
	err      error
	sources  []extract.Source
	template string
}

func (f *fakeExtractor) ExtractTemplate(ctx context.Context, src extract.Source, templateID string) (*model.ExtractionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources = append(f.sources, src)
	f.template = templateID
	return f.result, f.err
}

func (f *fakeExtractor) TemplateIDs() []string {
	return []string{"intake", "survey"}
}

func newRemote(t *testing.T, extractor Extractor) *RemoteExtractor {
	t.Helper()
	ctx := context.Background()

	c, err := client.NewInProcessClient(NewServer(extractor, "test"))
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx))

	remote, err := connect(ctx, c)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = remote.Close()
	})
	return remote
}

func TestExtractRecordRoundTripsText(t *testing.T) {
	fake := &fakeExtractor{result: &model.ExtractionResult{
		Summary:  "Ana called.",
		Fields:   []model.FieldValue{{Name: "name", Value: "Ana"}, {Name: "seats", Value: 12.0}},
		Attempts: 1,
	}}
	remote := newRemote(t, fake)

	result, err := remote.ExtractTemplate(context.Background(), extract.TextSource("Ana wants 12 seats"), "intake")
	require.NoError(t, err)
	assert.Equal(t, "Ana called.", result.Summary)
	assert.Equal(t, 1, result.Attempts)
	value, ok := result.Value("seats")
	require.True(t, ok)
	assert.Equal(t, 12.0, value)

	require.Len(t, fake.sources, 1)
	assert.Equal(t, "intake", fake.template)
	assert.Equal(t, extract.SourceText, fake.sources[0].Kind)
	assert.Equal(t, "Ana wants 12 seats", fake.sources[0].Text)
}

func TestExtractRecordDecodesAudioAndKeywords(t *testing.T) {
	fake := &fakeExtractor{result: &model.ExtractionResult{}}
	remote := newRemote(t, fake)

	audio := []byte("RIFF0000WAVE")
	src := extract.AudioSource(audio, "call.wav", model.AudioKeyword{Word: "eGFR"}, model.AudioKeyword{Word: "creatinine"})
	_, err := remote.ExtractTemplate(context.Background(), src, "intake")
	require.NoError(t, err)

	require.Len(t, fake.sources, 1)
	got := fake.sources[0]
	assert.Equal(t, extract.SourceAudio, got.Kind)
	assert.True(t, bytes.Equal(audio, got.Data))
	assert.Equal(t, "call.wav", got.FileName)
	assert.Equal(t, []model.AudioKeyword{{Word: "eGFR"}, {Word: "creatinine"}}, got.Keywords)
}

func TestExtractRecordKeepsErrorKind(t *testing.T) {
	fake := &fakeExtractor{err: failure.Newf(failure.KindSchemaNotFound, "schema.MemoryStore.Schema", "no template with id %q", "nope")}
	remote := newRemote(t, fake)

	_, err := remote.ExtractTemplate(context.Background(), extract.TextSource("text"), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.SchemaNotFound)
	assert.Contains(t, err.Error(), "nope")
}

func TestExtractRecordRequiresExactlyOneSource(t *testing.T) {
	fake := &fakeExtractor{}
	remote := newRemote(t, fake)

	_, err := remote.call(context.Background(), "test", ExtractToolName, map[string]any{
		"template_id":  "intake",
		"text":         "hello",
		"image_base64": "aGVsbG8=",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one")
	assert.Empty(t, fake.sources)
}

func TestExtractRecordRejectsBadBase64(t *testing.T) {
	remote := newRemote(t, &fakeExtractor{})

	_, err := remote.call(context.Background(), "test", ExtractToolName, map[string]any{
		"template_id":  "intake",
		"audio_base64": "%%%",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audio_base64")
}

func TestListTemplates(t *testing.T) {
	remote := newRemote(t, &fakeExtractor{})

	ids, err := remote.ListTemplates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"intake", "survey"}, ids)
}

func TestClosedRemoteIsConfigurationError(t *testing.T) {
	remote := newRemote(t, &fakeExtractor{})
	require.NoError(t, remote.Close())

	_, err := remote.ListTemplates(context.Background())
	assert.ErrorIs(t, err, failure.Configuration)
}

func TestRemoteErrorParsesKindPrefix(t *testing.T) {
	err := remoteError("op", "throttled: slow down")
	assert.ErrorIs(t, err, failure.Throttled)
	assert.Contains(t, err.Error(), "slow down")

	err = remoteError("op", "something broke: badly")
	assert.Equal(t, failure.KindUnknown, failure.KindOf(err))
	assert.Contains(t, err.Error(), "something broke: badly")
}
