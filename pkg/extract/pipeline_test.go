package extract

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/failure"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/model"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/retry"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/schema"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/transcribe"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/validate"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/suite"
)

const validResponse = `{"summary":"Ana called about seats.","fields":[
	{"field_name":"name","value":"Ana"},
	{"field_name":"rating","value":"Good"},
	{"field_name":"seats","value":12}]}`

const invalidResponse = `{"summary":"x","fields":[{"field_name":"rating","value":"Great"}]}`

type PipelineSuite struct {
	suite.Suite
	schema *schema.Schema
	timer  *instantTimer
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupTest() {
	s.schema = schema.MustNew("Call", "", []schema.Field{
		{Name: "name", Label: "Name", Type: schema.FieldTypeText, Required: true},
		{Name: "rating", Label: "Rating", Type: schema.FieldTypeSingleChoice, Required: true, Options: []string{"Good", "Bad"}},
		{Name: "seats", Label: "Seats", Type: schema.FieldTypeNumber},
	})
	s.timer = &instantTimer{}
}

func (s *PipelineSuite) TestValidResponseIsReturnedOnFirstAttempt() {
	gen := &fakeGenerator{responses: []string{validResponse}}
	p := s.newPipeline(gen)

	result, err := p.Extract(context.Background(), TextSource("Ana wants 12 seats and loved the call."), s.schema)
	s.Require().NoError(err)
	s.Equal(1, result.Attempts)
	s.Equal("Ana called about seats.", result.Summary)
	s.Equal([]model.FieldValue{
		{Name: "name", Value: "Ana"},
		{Name: "rating", Value: "Good"},
		{Name: "seats", Value: 12.0},
	}, result.Fields)
	s.Equal("1", result.Metadata[model.MetadataKeyAttempts])
	s.NotEmpty(result.Metadata[model.MetadataKeyRequestID])
	s.Len(gen.requests, 1)
	s.Contains(gen.requests[0].Prompt, "Ana wants 12 seats")
	s.NotNil(gen.requests[0].ResponseSchema)
	s.Empty(s.timer.waits)
}

func (s *PipelineSuite) TestInvalidResponseIsRetriedWithBackoff() {
	gen := &fakeGenerator{responses: []string{invalidResponse, validResponse}}
	p := s.newPipeline(gen)

	result, err := p.Extract(context.Background(), TextSource("transcript"), s.schema)
	s.Require().NoError(err)
	s.Equal(2, result.Attempts)
	s.Equal([]time.Duration{time.Second}, s.timer.waits)
}

func (s *PipelineSuite) TestExhaustedRetriesReportEveryIssue() {
	gen := &fakeGenerator{responses: []string{invalidResponse}}
	p := s.newPipeline(gen)

	_, err := p.Extract(context.Background(), TextSource("transcript"), s.schema)
	s.Require().Error(err)
	s.ErrorIs(err, failure.Validation)
	s.Len(gen.requests, 3)

	issues := validate.Issues(err)
	s.Require().Len(issues, 2)
	s.Contains(issues[0], "`name`")
	s.Contains(issues[1], "Great")

	var fe *failure.Error
	s.Require().ErrorAs(err, &fe)
	s.Equal(3, fe.Attempts)
}

func (s *PipelineSuite) TestConfigurationErrorIsNotRetried() {
	gen := &fakeGenerator{err: errors.New("Incorrect API key provided: sk-***")}
	p := s.newPipeline(gen)

	_, err := p.Extract(context.Background(), TextSource("transcript"), s.schema)
	s.ErrorIs(err, failure.Configuration)
	s.Len(gen.requests, 1)
	s.Empty(s.timer.waits)
}

func (s *PipelineSuite) TestMalformedOutputIsRetried() {
	gen := &fakeGenerator{responses: []string{"Sorry, I cannot help with that.", "```json\n" + validResponse + "\n```"}}
	p := s.newPipeline(gen)

	result, err := p.Extract(context.Background(), TextSource("transcript"), s.schema)
	s.Require().NoError(err)
	s.Equal(2, result.Attempts)
}

func (s *PipelineSuite) TestEmptySummaryFallsBackToSourceWords() {
	gen := &fakeGenerator{responses: []string{`{"fields":[{"field_name":"name","value":"Ana"},{"field_name":"rating","value":"Bad"}]}`}}
	p := s.newPipeline(gen)

	words := strings.Repeat("word ", 60)
	result, err := p.Extract(context.Background(), TextSource(words), s.schema)
	s.Require().NoError(err)
	s.Equal(strings.TrimSpace(strings.Repeat("word ", 50))+"...", result.Summary)
	s.Equal(schema.AbsenceSentinel, result.Fields[2].Value)
}

func (s *PipelineSuite) TestEmptyTextIsRejected() {
	gen := &fakeGenerator{responses: []string{validResponse}}
	_, err := s.newPipeline(gen).Extract(context.Background(), TextSource("  \n "), s.schema)
	s.ErrorIs(err, failure.Decode)
	s.Empty(gen.requests)
}

func (s *PipelineSuite) TestAudioSourceIsTranscribedFirst() {
	gen := &fakeGenerator{responses: []string{validResponse}}
	tr := &fakeTranscriber{text: "Ana wants twelve seats."}
	p := s.newPipeline(gen,
		WithTranscriber(tr, transcribe.WithWorkRoot(s.T().TempDir())),
	)

	result, err := p.Extract(context.Background(), AudioSource(s.wav(2*time.Second), "call.wav"), s.schema)
	s.Require().NoError(err)
	s.Equal("Ana wants twelve seats.", result.SourceText)
	s.Equal(1, tr.calls)
	s.Contains(gen.requests[0].Prompt, "Ana wants twelve seats.")
	s.Equal("1", result.Metadata[model.MetadataKeyChunks])
}

func (s *PipelineSuite) TestThrottledTranscriptionIsRetriedByController() {
	gen := &fakeGenerator{responses: []string{validResponse}}
	tr := &fakeTranscriber{text: "hello", failFirst: errors.New("429 Too Many Requests")}
	p := s.newPipeline(gen, WithTranscriber(tr, transcribe.WithWorkRoot(s.T().TempDir())))

	_, err := p.Extract(context.Background(), AudioSource(s.wav(time.Second), "call.wav"), s.schema)
	s.Require().NoError(err)
	s.Equal(2, tr.calls)
	s.Equal([]time.Duration{5 * time.Second}, s.timer.waits)
}

func (s *PipelineSuite) TestAudioGuards() {
	gen := &fakeGenerator{}

	_, err := s.newPipeline(gen).Extract(context.Background(), AudioSource([]byte("x"), "call.wav"), s.schema)
	s.ErrorIs(err, failure.Configuration)

	p := s.newPipeline(gen, WithTranscriber(&fakeTranscriber{}), WithMaxAudioBytes(4))
	_, err = p.Extract(context.Background(), AudioSource([]byte("0123456789"), "call.wav"), s.schema)
	s.ErrorIs(err, failure.UnsupportedFormat)

	_, err = p.Extract(context.Background(), AudioSource([]byte("01"), "notes.txt"), s.schema)
	s.ErrorIs(err, failure.UnsupportedFormat)
}

func (s *PipelineSuite) TestImageSourceIsReadFirst() {
	gen := &fakeGenerator{responses: []string{validResponse}}
	reader := &fakeImageReader{text: "Name: Ana\nSeats: 12"}
	p := s.newPipeline(gen, WithImageReader(reader))

	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)
	result, err := p.Extract(context.Background(), ImageSource(png, "form.png"), s.schema)
	s.Require().NoError(err)
	s.Equal("Name: Ana\nSeats: 12", result.SourceText)
	s.Equal("image/png", reader.lastMIME)
}

func (s *PipelineSuite) TestNonImageBytesAreRejected() {
	p := s.newPipeline(&fakeGenerator{}, WithImageReader(&fakeImageReader{}))
	_, err := p.Extract(context.Background(), ImageSource([]byte("plain text"), "form.png"), s.schema)
	s.ErrorIs(err, failure.UnsupportedFormat)
}

func (s *PipelineSuite) TestExtractTemplateResolvesSchema() {
	store := schema.NewMemoryStore()
	store.Put("call", s.schema)
	gen := &fakeGenerator{responses: []string{validResponse}}
	p := s.newPipeline(gen, WithSchemaStore(store))
	s.Equal([]string{"call"}, p.TemplateIDs())

	result, err := p.ExtractTemplate(context.Background(), TextSource("text"), "call")
	s.Require().NoError(err)
	s.Len(result.Fields, 3)

	_, err = p.ExtractTemplate(context.Background(), TextSource("text"), "unknown")
	s.ErrorIs(err, failure.SchemaNotFound)

	_, err = s.newPipeline(gen).ExtractTemplate(context.Background(), TextSource("text"), "call")
	s.ErrorIs(err, failure.Configuration)
}

func (s *PipelineSuite) TestSourceLanguageIsRecorded() {
	gen := &fakeGenerator{responses: []string{validResponse}}
	p := s.newPipeline(gen)

	text := "Hola, me llamo Ana y quiero reservar doce asientos para la cena de gala del viernes por la noche."
	result, err := p.Extract(context.Background(), TextSource(text), s.schema)
	s.Require().NoError(err)
	s.Equal("es", result.Metadata[model.MetadataKeySourceLanguage])
}

func (s *PipelineSuite) TestDetectLanguageSkipsTextWithoutLetters() {
	s.Equal("en", detectLanguage("The caller asked for a table for eight guests and said the booking went well."))
	s.Empty(detectLanguage("1234 5678"))
}

func (s *PipelineSuite) TestNewRequiresGenerator() {
	_, err := New(nil)
	s.ErrorIs(err, failure.Configuration)
}

func (s *PipelineSuite) newPipeline(gen model.TextGenerator, opts ...Option) *Pipeline {
	ctrl, err := retry.NewController(retry.DefaultPolicy(), retry.WithTimer(s.timer))
	s.Require().NoError(err)
	p, err := New(gen, append([]Option{WithRetryController(ctrl)}, opts...)...)
	s.Require().NoError(err)
	return p
}

func (s *PipelineSuite) wav(d time.Duration) []byte {
	const rate = 8000
	f, err := os.CreateTemp(s.T().TempDir(), "fixture-*.wav")
	s.Require().NoError(err)
	defer func() {
		_ = f.Close()
	}()

	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	s.Require().NoError(enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           make([]int, int(d.Seconds()*rate)),
		SourceBitDepth: 16,
	}))
	s.Require().NoError(enc.Close())

	data, err := os.ReadFile(f.Name())
	s.Require().NoError(err)
	s.Require().True(bytes.HasPrefix(data, []byte("RIFF")))
	return data
}

type instantTimer struct {
	waits []time.Duration
}

func (t *instantTimer) After(d time.Duration) <-chan time.Time {
	t.waits = append(t.waits, d)
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

// fakeGenerator replays responses in order, repeating the last one.
type fakeGenerator struct {
	responses []string
	err       error
	requests  []model.GenerationRequest
}

func (f *fakeGenerator) Generate(_ context.Context, req model.GenerationRequest) (string, model.GenerationMetadata, error) {
	f.requests = append(f.requests, req)
	meta := model.GenerationMetadata{model.MetadataKeyProvider: "fake", model.MetadataKeyAPICalls: "1"}
	if f.err != nil {
		return "", meta, f.err
	}
	i := min(len(f.requests)-1, len(f.responses)-1)
	return f.responses[i], meta, nil
}

type fakeTranscriber struct {
	text      string
	failFirst error
	calls     int
}

func (f *fakeTranscriber) Transcribe(context.Context, model.Audio) (string, model.GenerationMetadata, error) {
	f.calls++
	if f.calls == 1 && f.failFirst != nil {
		return "", nil, f.failFirst
	}
	return f.text, model.GenerationMetadata{}, nil
}

type fakeImageReader struct {
	text     string
	lastMIME string
}

func (f *fakeImageReader) ExtractText(_ context.Context, img model.Image) (string, model.GenerationMetadata, error) {
	f.lastMIME = img.MIMEType
	return f.text, nil, nil
}
