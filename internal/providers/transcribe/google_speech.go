package transcribe

import (
	"context"
	"os"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
)

// GoogleSpeech transcribes local audio files with Google Speech-to-Text.
type GoogleSpeech struct {
	c *speech.Client

	Encoding     speechpb.RecognitionConfig_AudioEncoding
	SampleRateHz int32
	Language     string
}

func NewGoogleSpeech(ctx context.Context, language string) (*GoogleSpeech, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	if language == "" {
		language = "en-US"
	}
	return &GoogleSpeech{
		c:            c,
		Encoding:     speechpb.RecognitionConfig_LINEAR16,
		SampleRateHz: 16000,
		Language:     language,
	}, nil
}

func (g *GoogleSpeech) Close() error { return g.c.Close() }

func (g *GoogleSpeech) Transcribe(ctx context.Context, localPath string) (*Result, error) {
	audio, err := os.ReadFile(localPath)
	if err != nil {
		return nil, err
	}

	resp, err := g.c.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   g.Encoding,
			SampleRateHertz:            g.SampleRateHz,
			LanguageCode:               g.Language,
			EnableAutomaticPunctuation: true,
			EnableWordTimeOffsets:      true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return nil, err
	}

	out := &Result{Language: g.Language}
	var parts []string

	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		if alt.Transcript == "" {
			continue
		}
		parts = append(parts, alt.Transcript)
		if r.LanguageCode != "" {
			out.Language = r.LanguageCode
		}

		seg := Segment{Text: alt.Transcript}
		if len(alt.Words) > 0 {
			seg.Start = alt.Words[0].StartTime.AsDuration().Seconds()
			seg.End = alt.Words[len(alt.Words)-1].EndTime.AsDuration().Seconds()
		} else if r.ResultEndTime != nil {
			seg.End = r.ResultEndTime.AsDuration().Seconds()
		}
		out.Segments = append(out.Segments, seg)
	}

	out.Text = strings.TrimSpace(strings.Join(parts, " "))
	if n := len(out.Segments); n > 0 {
		out.DurationSeconds = out.Segments[n-1].End
	}
	return out, nil
}
