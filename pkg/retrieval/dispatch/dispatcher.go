// Package dispatch submits audio and image queries to the similarity
// endpoints and normalizes what comes back.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/logger"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/models"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/errs"
)

const (
	DefaultBaseURL = "http://localhost:4001/api"
	DefaultTimeout = 60 * time.Second

	// FormField is the multipart field carrying the query file.
	FormField = "file"

	AudioSearchPath = "/songs/search-by-audio"
	ImageSearchPath = "/albums/search-by-image"

	maxResponseBytes = 8 << 20
)

type Option func(*Dispatcher)

func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) {
		d.client = c
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(d *Dispatcher) {
		d.log = log
	}
}

// Dispatcher is safe for concurrent use. Submissions are independent: a new
// one never cancels an older one.
type Dispatcher struct {
	baseURL string
	client  *http.Client
	log     *logger.Logger
}

func New(baseURL string, opts ...Option) *Dispatcher {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	d := &Dispatcher{baseURL: strings.TrimRight(baseURL, "/")}
	for _, opt := range opts {
		opt(d)
	}
	if d.client == nil {
		d.client = &http.Client{Timeout: DefaultTimeout}
	}
	if d.log == nil {
		d.log = logger.GetLogger().Named("dispatch")
	}
	return d
}

func endpoint(kind models.Kind) (string, error) {
	switch kind {
	case models.KindAudio:
		return AudioSearchPath, nil
	case models.KindImage:
		return ImageSearchPath, nil
	default:
		return "", errs.New(errs.CodeInvalidInput, fmt.Sprintf("unknown query kind %d", kind), nil)
	}
}

// Submit posts blob to the endpoint for kind. A 404 or an empty result list
// is a NoMatch response, not an error. Any other non-2xx status or a
// transport failure is errs.ErrMatchRequestFailed.
func (d *Dispatcher) Submit(ctx context.Context, blob models.Blob, kind models.Kind) (*models.MatchResponse, error) {
	path, err := endpoint(kind)
	if err != nil {
		return nil, err
	}
	if len(blob.Data) == 0 {
		return nil, errs.New(errs.CodeInvalidInput, "query payload is empty", nil)
	}

	body, contentType, err := encodeMultipart(blob)
	if err != nil {
		return nil, errs.New(errs.CodeInvalidInput, "building multipart body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+path, body)
	if err != nil {
		return nil, errs.New(errs.CodeInvalidInput, "building request", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, errs.RequestFailed(errs.CodeMatchRequestFailed, 0, "POST "+path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errs.RequestFailed(errs.CodeMatchRequestFailed, resp.StatusCode, "reading response", err)
	}
	d.log.Debugf("POST %s -> %d in %s (%d bytes sent)", path, resp.StatusCode, time.Since(start), len(blob.Data))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &models.MatchResponse{Kind: kind, Outcome: models.OutcomeNotFound}, nil

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var mr matchResponse
		if len(bytes.TrimSpace(raw)) > 0 {
			if err := json.Unmarshal(raw, &mr); err != nil {
				return nil, errs.RequestFailed(errs.CodeMatchRequestFailed, resp.StatusCode, "decoding response", err)
			}
		}
		out := &models.MatchResponse{
			Kind:    kind,
			Items:   toItems(mr.Data),
			Elapsed: elapsed(kind, mr.Time),
		}
		if len(out.Items) == 0 {
			out.Outcome = models.OutcomeEmpty
		}
		return out, nil

	default:
		return nil, errs.RequestFailed(errs.CodeMatchRequestFailed, resp.StatusCode,
			fmt.Sprintf("POST %s returned %d: %s", path, resp.StatusCode, serverMessage(raw, resp.StatusCode)), nil)
	}
}

// serverMessage extracts a readable message from an error body.
func serverMessage(raw []byte, status int) string {
	var er ErrorResponse
	if err := json.Unmarshal(raw, &er); err == nil {
		if er.Message != "" {
			return er.Message
		}
		if er.Error != "" {
			return er.Error
		}
	}
	if s := strings.TrimSpace(string(raw)); s != "" && len(s) < 200 {
		return s
	}
	return http.StatusText(status)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func encodeMultipart(blob models.Blob) (io.Reader, string, error) {
	filename := blob.Filename
	if filename == "" {
		filename = "query"
	}
	contentType := blob.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(blob.Data)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FormField, quoteEscaper.Replace(filename)))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(blob.Data); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}
