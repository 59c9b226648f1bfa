// Package deepgram implements the stt contracts on Deepgram. Live consultations
// stream linear16 PCM over the listen WebSocket; uploaded clips go to the
// pre-recorded REST endpoint with diarisation.
package deepgram

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/coder/websocket"

	"github.com/docassist/docassist/pkg/provider/stt"
)

// Defaults applied by [New].
const (
	defaultModel      = "nova-3-medical"
	defaultLanguage   = "en-US"
	defaultSampleRate = 16000

	listenWS   = "wss://api.deepgram.com/v1/listen"
	listenREST = "https://api.deepgram.com/v1/listen"
)

// Provider is a Deepgram account bound to one model.
type Provider struct {
	apiKey     string
	model      string
	language   string
	sampleRate int
	streamURL  string
	restURL    string
	client     *http.Client
}

var (
	_ stt.Provider    = (*Provider)(nil)
	_ stt.Transcriber = (*Provider)(nil)
)

// Option customises a [Provider].
type Option func(*Provider)

// WithModel picks the Deepgram model, e.g. "nova-2-medical".
func WithModel(model string) Option { return func(p *Provider) { p.model = model } }

// WithLanguage sets the language used when a request names none.
func WithLanguage(lang string) Option { return func(p *Provider) { p.language = lang } }

// WithSampleRate sets the PCM rate assumed when a stream names none.
func WithSampleRate(hz int) Option { return func(p *Provider) { p.sampleRate = hz } }

// WithStreamEndpoint points live streams at another WebSocket URL.
func WithStreamEndpoint(u string) Option { return func(p *Provider) { p.streamURL = u } }

// WithRESTEndpoint points clip uploads at another URL.
func WithRESTEndpoint(u string) Option { return func(p *Provider) { p.restURL = u } }

// WithHTTPClient replaces the client used for clip uploads.
func WithHTTPClient(c *http.Client) Option { return func(p *Provider) { p.client = c } }

// New returns a provider authenticated with apiKey.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: api key required")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
		streamURL:  listenWS,
		restURL:    listenREST,
		client:     &http.Client{Timeout: 2 * time.Minute},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream dials the listen socket. ctx bounds the handshake; the stream
// then lives until Close.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	target, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: stream url: %w", err)
	}
	conn, _, err := websocket.Dial(ctx, target, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {p.token()}},
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial %s: %w", p.model, err)
	}
	return openStream(context.WithoutCancel(ctx), conn), nil
}

func (p *Provider) token() string { return "Token " + p.apiKey }

// buildURL renders the listen query for one live stream. Keywords are sent as
// "term:boost" pairs.
func (p *Provider) buildURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.streamURL)
	if err != nil {
		return "", err
	}
	q := url.Values{
		"model":           {p.model},
		"language":        {cmp.Or(cfg.Language, p.language)},
		"sample_rate":     {strconv.Itoa(cmp.Or(cfg.SampleRate, p.sampleRate))},
		"encoding":        {"linear16"},
		"punctuate":       {"true"},
		"interim_results": {"true"},
	}
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}
	for _, kw := range cfg.Keywords {
		q.Add("keywords", kw.Keyword+":"+strconv.FormatFloat(kw.Boost, 'g', -1, 64))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
