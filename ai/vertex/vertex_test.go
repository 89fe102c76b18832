package vertex

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/vertexai/genai"
	"github.com/poiesic/photoscan/ai"
	"github.com/poiesic/photoscan/core"
	"github.com/poiesic/photoscan/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeModel struct {
	parts []genai.Part
	resp  *genai.GenerateContentResponse
	err   error
}

func (f *fakeModel) GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.parts = parts
	return f.resp, f.err
}

func textResponse(texts ...string) *genai.GenerateContentResponse {
	parts := make([]genai.Part, len(texts))
	for i, t := range texts {
		parts[i] = genai.Text(t)
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: parts}}},
	}
}

func TestDescriber_Describe(t *testing.T) {
	model := &fakeModel{resp: textResponse("Fishing boats rest ", "in a quiet harbour. ")}
	d := newDescriber(model, "gemini-1.5-flash")

	desc, err := d.Describe(context.Background(), ai.DescribeRequest{
		Image: []byte{0xff, 0xd8},
		Hints: ai.Hints{Folder: "palermo"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Fishing boats rest in a quiet harbour.", desc.Text)
	assert.Equal(t, "gemini-1.5-flash", desc.Model)

	require.GreaterOrEqual(t, len(model.parts), 2+len(ai.StyleRules)+1)
	assert.Equal(t, genai.Text(ai.PhotoPrefix), model.parts[0])
	blob, ok := model.parts[1].(genai.Blob)
	require.True(t, ok, "second part should be the image")
	assert.Equal(t, "image/jpeg", blob.MIMEType)
	assert.Equal(t, []byte{0xff, 0xd8}, blob.Data)
	last := model.parts[len(model.parts)-1].(genai.Text)
	assert.Contains(t, string(last), "Use the folder palermo")
}

func TestDescriber_EmptyResponseIsPermanent(t *testing.T) {
	d := newDescriber(&fakeModel{resp: &genai.GenerateContentResponse{}}, "m")

	_, err := d.Describe(context.Background(), ai.DescribeRequest{Image: []byte{1}})
	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err))
	assert.ErrorIs(t, err, core.ErrEmptyDescription)
}

func TestAnswerer_Answer(t *testing.T) {
	model := &fakeModel{resp: textResponse("Palermo")}
	a := newAnswerer(model)

	answer, err := a.Answer(context.Background(), "Where?", []string{"Boats in Palermo"})
	require.NoError(t, err)
	assert.Equal(t, "Palermo", answer)
	require.Len(t, model.parts, 1)
	assert.Equal(t, genai.Text(ai.AnswerPrompt("Where?", []string{"Boats in Palermo"})), model.parts[0])
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		permanent bool
	}{
		{"invalid argument", status.Error(codes.InvalidArgument, "bad image"), true},
		{"permission denied", status.Error(codes.PermissionDenied, "no access"), true},
		{"not found", status.Error(codes.NotFound, "no model"), true},
		{"unavailable", status.Error(codes.Unavailable, "try later"), false},
		{"resource exhausted", status.Error(codes.ResourceExhausted, "quota"), false},
		{"deadline", status.Error(codes.DeadlineExceeded, "slow"), false},
		{"blocked", &genai.BlockedError{}, true},
		{"plain", errors.New("connection reset"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyError(tt.err)
			assert.Equal(t, tt.permanent, retry.IsPermanent(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestDescriber_ErrorClassified(t *testing.T) {
	d := newDescriber(&fakeModel{err: status.Error(codes.InvalidArgument, "bad")}, "m")
	_, err := d.Describe(context.Background(), ai.DescribeRequest{Image: []byte{1}})
	assert.True(t, retry.IsPermanent(err))
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.Validate(), "project is required")

	cfg.Project = "my-project"
	require.NoError(t, cfg.Validate())

	cfg.Model = ""
	assert.Error(t, cfg.Validate())
}
