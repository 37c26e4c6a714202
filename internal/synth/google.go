package synth

import (
	"context"
	"fmt"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/charmbracelet/log"
	"google.golang.org/api/option"
)

// GoogleConfig selects credentials for the Google providers. With neither
// field set the client falls back to application default credentials.
type GoogleConfig struct {
	CredentialsFile string
	APIKey          string
}

// GoogleSynthesizer calls Cloud Text-to-Speech over gRPC.
type GoogleSynthesizer struct {
	client *texttospeech.Client
}

// NewGoogle creates the gRPC client. Failures wrap ErrCredentials.
func NewGoogle(ctx context.Context, cfg GoogleConfig) (*GoogleSynthesizer, error) {
	var opts []option.ClientOption
	switch {
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	case cfg.APIKey != "":
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}

	client, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentials, err)
	}
	log.Debug("Text-to-speech client ready")
	return &GoogleSynthesizer{client: client}, nil
}

// Synthesize implements Synthesizer.
func (g *GoogleSynthesizer) Synthesize(ctx context.Context, req Request) (Audio, error) {
	resp, err := g.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Ssml{Ssml: req.SSML},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: req.LanguageCode,
			Name:         req.Voice,
			SsmlGender:   ssmlGender(req.Gender),
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding:   texttospeechpb.AudioEncoding_LINEAR16,
			SampleRateHertz: int32(req.SampleRate),
		},
	})
	if err != nil {
		return Audio{}, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	return decodeAudio(resp.GetAudioContent(), req)
}

// Close releases the connection.
func (g *GoogleSynthesizer) Close() error {
	return g.client.Close()
}

func ssmlGender(g string) texttospeechpb.SsmlVoiceGender {
	if v, ok := texttospeechpb.SsmlVoiceGender_value[genderName(g)]; ok {
		return texttospeechpb.SsmlVoiceGender(v)
	}
	return texttospeechpb.SsmlVoiceGender_SSML_VOICE_GENDER_UNSPECIFIED
}
