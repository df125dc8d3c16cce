package llm

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/sashabaranov/go-openai"
)

const reportToolName = "report_findings"

type OpenAIClient struct {
	client             *openai.Client
	model              string
	transcriptionModel string
}

func NewOpenAIClient(apiKey string, model string, transcriptionModel string, baseURL string) *OpenAIClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if transcriptionModel == "" {
		transcriptionModel = openai.Whisper1
	}
	return &OpenAIClient{
		client:             openai.NewClientWithConfig(config),
		model:              model,
		transcriptionModel: transcriptionModel,
	}
}

func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	}
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) > 0 {
		return resp.Choices[0].Message.Content, nil
	}
	return "", fmt.Errorf("no response choices")
}

// Invoke forces a structured answer through a single tool call whose
// parameters are the requested schema.
func (c *OpenAIClient) Invoke(ctx context.Context, prompt string, schema json.RawMessage) (json.RawMessage, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Tools: []openai.Tool{
			{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        reportToolName,
					Description: "Report the structured findings for this request.",
					Parameters:  schema,
				},
			},
		},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: reportToolName},
		},
	}
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response choices")
	}

	msg := resp.Choices[0].Message
	for _, call := range msg.ToolCalls {
		if call.Function.Name == reportToolName {
			return json.RawMessage(call.Function.Arguments), nil
		}
	}
	// Some OpenAI-compatible backends answer in plain content instead of
	// honoring tool_choice.
	return ExtractJSON(msg.Content)
}

func (c *OpenAIClient) Transcribe(ctx context.Context, samples []int16, sampleRate int, language string) (Transcript, error) {
	req := openai.AudioRequest{
		Model:    c.transcriptionModel,
		FilePath: "audio.wav",
		Reader:   bytes.NewReader(encodeWAV(samples, sampleRate)),
		Language: language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	}
	resp, err := c.client.CreateTranscription(ctx, req)
	if err != nil {
		return Transcript{}, fmt.Errorf("transcription failed: %w", err)
	}

	confidence := 1.0
	if len(resp.Segments) > 0 {
		sum := 0.0
		for _, seg := range resp.Segments {
			sum += math.Exp(seg.AvgLogprob)
		}
		confidence = math.Min(sum/float64(len(resp.Segments)), 1.0)
	}
	return Transcript{Text: resp.Text, Confidence: confidence}, nil
}

// encodeWAV wraps mono 16-bit PCM samples in a RIFF/WAVE header.
func encodeWAV(samples []int16, sampleRate int) []byte {
	dataLen := len(samples) * 2
	buf := bytes.NewBuffer(make([]byte, 0, 44+dataLen))

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2)) // byte rate
	binary.Write(buf, binary.LittleEndian, uint16(2))            // block align
	binary.Write(buf, binary.LittleEndian, uint16(16))           // bits per sample

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	binary.Write(buf, binary.LittleEndian, samples)

	return buf.Bytes()
}
