package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// OpenAIClient talks to a Whisper-compatible /audio/transcriptions endpoint.
type OpenAIClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultOpenAIBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		// No client timeout: the caller bounds the call through ctx.
		hc = &http.Client{}
	}
	return &OpenAIClient{baseURL: base, apiKey: cfg.APIKey, http: hc}
}

type transcriptionResp struct {
	Text string `json:"text"`
}

type apiErrorResp struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *OpenAIClient) Transcribe(ctx context.Context, r io.Reader, filename, model string) (string, error) {
	pr, pw := io.Pipe()
	defer pr.Close()

	mw := multipart.NewWriter(pw)
	writeErr := make(chan error, 1)
	go func() {
		err := writeForm(mw, r, filename, model)
		writeErr <- err
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", pr)
	if err != nil {
		return "", newError(KindInvalidInput, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		select {
		case werr := <-writeErr:
			if werr != nil && !errors.Is(werr, io.ErrClosedPipe) {
				return "", newError(KindInvalidInput, fmt.Errorf("read media: %w", werr))
			}
		default:
		}
		return "", classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp)
	}

	var out transcriptionResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if ctx.Err() != nil {
			return "", classifyTransport(ctx, err)
		}
		return "", newError(KindUnavailable, fmt.Errorf("decode response: %w", err))
	}
	return out.Text, nil
}

func writeForm(mw *multipart.Writer, r io.Reader, filename, model string) error {
	if err := mw.WriteField("model", model); err != nil {
		return err
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return err
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return err
	}
	return mw.Close()
}

func statusError(resp *http.Response) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))

	msg := strings.TrimSpace(string(body))
	var apiErr apiErrorResp
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
	}
	err := fmt.Errorf("status %d: %s", resp.StatusCode, msg)

	switch resp.StatusCode {
	case http.StatusBadRequest,
		http.StatusRequestEntityTooLarge,
		http.StatusUnsupportedMediaType,
		http.StatusUnprocessableEntity:
		return newError(KindInvalidInput, err)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return newError(KindTimeout, err)
	default:
		return newError(KindUnavailable, err)
	}
}
