package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/docassist/docassist/pkg/provider/stt"
)

// ErrUpstream wraps non-2xx responses from the pre-recorded API.
type ErrUpstream struct {
	Status int
	Body   string
}

func (e *ErrUpstream) Error() string {
	return fmt.Sprintf("deepgram: upstream status %d: %s", e.Status, e.Body)
}

type prerecordedResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []alternative `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe sends a whole clip to the pre-recorded API. contentType is
// forwarded as is so Deepgram can detect the container format.
func (p *Provider) Transcribe(ctx context.Context, audio io.Reader, contentType string, opts stt.TranscribeOptions) (*stt.Recording, error) {
	u, err := p.buildRESTURL(opts)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, audio)
	if err != nil {
		return nil, fmt.Errorf("deepgram: new request: %w", err)
	}
	req.Header.Set("Authorization", p.token())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepgram: transcribe: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &ErrUpstream{Status: resp.StatusCode, Body: string(body)}
	}

	var pr prerecordedResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("deepgram: decode response: %w", err)
	}

	rec := &stt.Recording{}
	if len(pr.Results.Channels) > 0 && len(pr.Results.Channels[0].Alternatives) > 0 {
		alt := pr.Results.Channels[0].Alternatives[0]
		rec.Transcript = alt.Transcript
		rec.Words = alt.words()
	}
	return rec, nil
}

func (p *Provider) buildRESTURL(opts stt.TranscribeOptions) (string, error) {
	u, err := url.Parse(p.restURL)
	if err != nil {
		return "", err
	}
	lang := opts.Language
	if lang == "" {
		lang = p.language
	}
	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	if opts.Diarize {
		q.Set("diarize", "true")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
