package synth

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultRESTEndpoint is the public Text-to-Speech REST endpoint.
const DefaultRESTEndpoint = "https://texttospeech.googleapis.com"

// RESTSynthesizer calls the Text-to-Speech REST API with an API key.
type RESTSynthesizer struct {
	client *resty.Client
	apiKey string
}

type restRequest struct {
	Input struct {
		SSML string `json:"ssml"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode,omitempty"`
		Name         string `json:"name,omitempty"`
		SSMLGender   string `json:"ssmlGender,omitempty"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding   string `json:"audioEncoding"`
		SampleRateHertz int    `json:"sampleRateHertz,omitempty"`
	} `json:"audioConfig"`
}

type restResponse struct {
	AudioContent []byte `json:"audioContent"` // base64 in JSON
}

type restError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// NewREST creates a REST provider. An empty endpoint uses the public one.
func NewREST(endpoint string, cfg GoogleConfig) (*RESTSynthesizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: an API key is required", ErrCredentials)
	}
	if endpoint == "" {
		endpoint = DefaultRESTEndpoint
	}
	client := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(60*time.Second).
		SetHeader("Content-Type", "application/json")
	return &RESTSynthesizer{client: client, apiKey: cfg.APIKey}, nil
}

// Synthesize implements Synthesizer.
func (r *RESTSynthesizer) Synthesize(ctx context.Context, req Request) (Audio, error) {
	var body restRequest
	body.Input.SSML = req.SSML
	body.Voice.LanguageCode = req.LanguageCode
	body.Voice.Name = req.Voice
	body.Voice.SSMLGender = genderName(req.Gender)
	body.AudioConfig.AudioEncoding = "LINEAR16"
	body.AudioConfig.SampleRateHertz = req.SampleRate

	var out restResponse
	var apiErr restError
	resp, err := r.client.R().
		SetContext(ctx).
		SetQueryParam("key", r.apiKey).
		SetBody(&body).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/text:synthesize")
	if err != nil {
		return Audio{}, fmt.Errorf("%w: %w", ErrSynthesis, err)
	}
	if resp.IsError() {
		msg := apiErr.Error.Message
		if msg == "" {
			msg = resp.Status()
		}
		return Audio{}, fmt.Errorf("%w: %s", ErrSynthesis, msg)
	}
	return decodeAudio(out.AudioContent, req)
}

// Close releases idle connections.
func (r *RESTSynthesizer) Close() error {
	r.client.GetClient().CloseIdleConnections()
	return nil
}
