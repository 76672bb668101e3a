package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/GriffinCanCode/cinescribe/internal/errors"
	"github.com/GriffinCanCode/cinescribe/internal/imaging"
)

// HTTP posts OpenAI-compatible chat completions, as served by LM Studio, Ollama and vLLM.
type HTTP struct {
	ep     Endpoint
	client *http.Client
}

func NewHTTP(ep Endpoint) *HTTP {
	ep.JPEGQuality = orDefault(ep.JPEGQuality, 85)
	return &HTTP{ep: ep, client: &http.Client{Timeout: orDefault(ep.Timeout, 90*time.Second)}}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (h *HTTP) buildRequest(req Request) (chatRequest, error) {
	var msgs []chatMessage
	if req.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}

	if len(req.Images) == 0 {
		msgs = append(msgs, chatMessage{Role: "user", Content: req.Prompt})
	} else {
		parts := make([]contentPart, 0, len(req.Images)+1)
		if req.Prompt != "" {
			parts = append(parts, contentPart{Type: "text", Text: req.Prompt})
		}
		for _, img := range req.Images {
			url, err := imaging.DataURL(img, h.ep.JPEGQuality)
			if err != nil {
				return chatRequest{}, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "encode image")
			}
			parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: url}})
		}
		msgs = append(msgs, chatMessage{Role: "user", Content: parts})
	}

	return chatRequest{
		Model:       h.ep.Model,
		Messages:    msgs,
		Temperature: temperature(req, h.ep),
		MaxTokens:   req.MaxTokens,
	}, nil
}

func (h *HTTP) Complete(ctx context.Context, req Request) (string, error) {
	payload, err := h.buildRequest(req)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeInternal, "marshal chat request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.ep.URL, bytes.NewReader(body))
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeConfigInvalid, "build chat request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if h.ep.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+h.ep.APIKey)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return "", transportError(err, "chat completion "+describe(h.ep))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", transportError(err, "read chat response")
	}

	if resp.StatusCode != http.StatusOK {
		code := apperrors.CodeInferenceFailed
		switch resp.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusTooManyRequests:
			code = apperrors.CodeInferenceUnavailable
		}
		return "", apperrors.Newf(code, "inference API error %d: %.200s", resp.StatusCode, data).
			WithMetadata("status", strconv.Itoa(resp.StatusCode)).
			WithMetadata("model", h.ep.Model)
	}

	var cr chatResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeInferenceFailed, fmt.Sprintf("parse chat response from %s", describe(h.ep)))
	}
	if len(cr.Choices) == 0 {
		return "", emptyCompletion(h.ep.Model)
	}
	text := clean(cr.Choices[0].Message.Content)
	if text == "" {
		return "", emptyCompletion(h.ep.Model)
	}
	return text, nil
}
