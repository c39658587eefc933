package ai

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/greenfield-labs/smartfarm/backend/internal/model/chat"
	"github.com/greenfield-labs/smartfarm/backend/internal/model/sensor"
)

type recordingModel struct {
	reply  string
	chunks []string
	input  []*schema.Message
}

func (m *recordingModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.input = input
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *recordingModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.input = input
	msgs := make([]*schema.Message, 0, len(m.chunks))
	for _, c := range m.chunks {
		msgs = append(msgs, schema.AssistantMessage(c, nil))
	}
	return schema.StreamReaderFromArray(msgs), nil
}

func (m *recordingModel) BindTools(tools []*schema.ToolInfo) error {
	return nil
}

func TestAdvisorGenerateGroundsPrompt(t *testing.T) {
	fake := &recordingModel{reply: "Water lightly tomorrow."}
	advisor, err := NewAdvisor(context.Background(), fake, true, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewAdvisor err: %v", err)
	}

	readings := &sensor.Snapshot{Moisture: 31, Temperature: 24, PH: 6.2, CO2: 450, Light: 850, Humidity: 65}
	history := []chat.Message{
		{Sender: chat.SenderAssistant, Content: "Hello there, farmer!"},
		{Sender: chat.SenderAssistant, Content: "Analyzing your image...", IsLoading: true},
	}

	out, err := advisor.Generate(context.Background(), Request{
		History:   history,
		Query:     "should I water?",
		Readings:  readings,
		Reference: "No irrigation is needed.",
	})
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}
	if out.Content != "Water lightly tomorrow." {
		t.Fatalf("unexpected reply %q", out.Content)
	}

	if len(fake.input) != 3 {
		t.Fatalf("expected system + 1 history + query, got %d messages", len(fake.input))
	}
	system := fake.input[0].Content
	if !strings.Contains(system, "soil moisture: 31% (critical)") {
		t.Fatalf("system prompt missing readings: %q", system)
	}
	if !strings.Contains(system, "No irrigation is needed.") {
		t.Fatalf("system prompt missing reference: %q", system)
	}
	if fake.input[2].Content != "should I water?" {
		t.Fatalf("unexpected query message %q", fake.input[2].Content)
	}
}

func TestAdvisorStream(t *testing.T) {
	fake := &recordingModel{chunks: []string{"Plant ", "maize."}}
	advisor, err := NewAdvisor(context.Background(), fake, true, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewAdvisor err: %v", err)
	}

	stream, err := advisor.Stream(context.Background(), Request{Query: "what should I grow?"})
	if err != nil {
		t.Fatalf("Stream err: %v", err)
	}
	defer stream.Close()

	var b strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv err: %v", err)
		}
		b.WriteString(chunk.Content)
	}
	if b.String() != "Plant maize." {
		t.Fatalf("unexpected streamed text %q", b.String())
	}
}

func TestAdvisorStreamDisabled(t *testing.T) {
	advisor, err := NewAdvisor(context.Background(), &recordingModel{}, false, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewAdvisor err: %v", err)
	}
	if _, err := advisor.Stream(context.Background(), Request{Query: "hi"}); !errors.Is(err, ErrStreamingDisabled) {
		t.Fatalf("expected ErrStreamingDisabled, got %v", err)
	}
}

func TestHistoryIsCapped(t *testing.T) {
	msgs := make([]chat.Message, 25)
	for i := range msgs {
		msgs[i] = chat.Message{Sender: chat.SenderUser, Content: "q"}
	}
	if got := len(buildHistoryMessages(msgs)); got != historyLimit {
		t.Fatalf("history length = %d, want %d", got, historyLimit)
	}
}
