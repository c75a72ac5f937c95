package webhook

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"contentgen/internal/domain"
	"contentgen/internal/statusmap"
	"contentgen/internal/storage"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var schemaFiles = map[domain.Domain]string{
	domain.DomainBook:  "schemas/book.json",
	domain.DomainImage: "schemas/image.json",
	domain.DomainVideo: "schemas/video.json",
}

// Decoder validates raw webhook bodies and converts them into events.
type Decoder struct {
	schemas map[domain.Domain]*jsonschema.Schema
	locator *storage.Locator
}

// NewDecoder compiles the embedded payload schemas. Artifact keys are
// resolved through locator; a nil locator keeps keys and urls as sent.
func NewDecoder(locator *storage.Locator) (*Decoder, error) {
	d := &Decoder{schemas: make(map[domain.Domain]*jsonschema.Schema), locator: locator}
	for dom, file := range schemaFiles {
		raw, err := schemaFS.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", file, err)
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(file, bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("load schema %s: %w", file, err)
		}
		schema, err := compiler.Compile(file)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", file, err)
		}
		d.schemas[dom] = schema
	}
	return d, nil
}

type wireEvent struct {
	JobID          string          `json:"job_id"`
	Status         string          `json:"status"`
	Timestamp      json.RawMessage `json:"timestamp"`
	Environment    string          `json:"environment"`
	Progress       *int            `json:"progress"`
	Error          *string         `json:"error"`
	UserID         *string         `json:"user_id"`
	OrganizationID *string         `json:"organization_id"`
	Result         json.RawMessage `json:"result"`
}

// Decode checks body against the domain schema, then applies the semantic
// rules: the status must belong to the domain vocabulary and completion
// events must carry a result.
func (d *Decoder) Decode(dom domain.Domain, body []byte) (*Event, error) {
	schema, ok := d.schemas[dom]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported domain %q", domain.ErrValidation, dom)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: malformed json: %v", domain.ErrValidation, err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrValidation, schemaMessage(err))
	}

	var w wireEvent
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	ev := &Event{
		Domain:        dom,
		ExternalJobID: strings.TrimSpace(w.JobID),
		Status:        statusmap.Normalize(w.Status),
		Environment:   w.Environment,
		Progress:      w.Progress,
	}
	if ev.ExternalJobID == "" {
		return nil, fmt.Errorf("%w: job_id is required", domain.ErrValidation)
	}
	if w.Error != nil {
		ev.Error = strings.TrimSpace(*w.Error)
	}
	if w.UserID != nil {
		ev.UserID = strings.TrimSpace(*w.UserID)
	}
	if w.OrganizationID != nil {
		ev.OrganizationID = strings.TrimSpace(*w.OrganizationID)
	}

	ts, err := parseTimestamp(w.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	ev.Timestamp = ts

	mapping, err := statusmap.Map(dom, ev.Status)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	ev.Mapping = mapping

	if hasValue(w.Result) {
		res, err := d.decodeResult(dom, w.Result)
		if err != nil {
			return nil, err
		}
		ev.Result = res
	}
	if mapping.Status == domain.JobStatusCompleted && ev.Result == nil {
		return nil, fmt.Errorf("%w: result is required for status %q", domain.ErrValidation, ev.Status)
	}
	return ev, nil
}

func hasValue(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// parseTimestamp accepts RFC 3339 strings or epoch milliseconds.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	if !hasValue(raw) {
		return time.Time{}, errors.New("timestamp is required")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC(), nil
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), nil
		}
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %s", string(raw))
	}
	return time.UnixMilli(ms).UTC(), nil
}

func schemaMessage(err error) string {
	var ve *jsonschema.ValidationError
	if errors.As(err, &ve) {
		leaf := ve
		for len(leaf.Causes) > 0 {
			leaf = leaf.Causes[0]
		}
		loc := leaf.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return fmt.Sprintf("%s: %s", loc, leaf.Message)
	}
	return err.Error()
}

type bookResult struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Metadata    json.RawMessage `json:"metadata"`
	Chapters    []struct {
		Order      int    `json:"order"`
		Title      string `json:"title"`
		Content    string `json:"content"`
		StorageKey string `json:"storage_key"`
		URL        string `json:"url"`
		WordCount  *int   `json:"word_count"`
	} `json:"chapters"`
}

type mediaItem struct {
	Index           *int    `json:"index"`
	StorageKey      string  `json:"storage_key"`
	URL             string  `json:"url"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	MIME            string  `json:"mime"`
	Bytes           int64   `json:"bytes"`
	DurationSeconds float64 `json:"duration_seconds"`
	ThumbnailURL    string  `json:"thumbnail_url"`
}

type mediaResult struct {
	Title    string          `json:"title"`
	Prompt   string          `json:"prompt"`
	Metadata json.RawMessage `json:"metadata"`
	Images   []mediaItem     `json:"images"`
	Videos   []mediaItem     `json:"videos"`
}

func (d *Decoder) decodeResult(dom domain.Domain, raw json.RawMessage) (*Result, error) {
	res := &Result{Raw: append(json.RawMessage(nil), raw...)}
	switch dom {
	case domain.DomainBook:
		var b bookResult
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, fmt.Errorf("%w: result: %v", domain.ErrValidation, err)
		}
		res.Title = strings.TrimSpace(b.Title)
		res.Summary = strings.TrimSpace(b.Description)
		res.Metadata = objectOrNil(b.Metadata)
		for _, ch := range b.Chapters {
			a := domain.Artifact{
				Domain:   dom,
				Position: ch.Order,
				Title:    strings.TrimSpace(ch.Title),
				Body:     ch.Content,
				MIME:     "text/markdown",
				Bytes:    int64(len(ch.Content)),
			}
			if ch.StorageKey != "" || ch.URL != "" {
				key, u, err := d.locate(ch.StorageKey, ch.URL)
				if err != nil {
					return nil, err
				}
				a.StorageKey, a.URL = key, u
			}
			wc := countWords(ch.Content)
			if ch.WordCount != nil {
				wc = *ch.WordCount
			}
			a.Metadata = mustJSON(map[string]any{"word_count": wc})
			res.Items = append(res.Items, a)
		}
	case domain.DomainImage, domain.DomainVideo:
		var m mediaResult
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("%w: result: %v", domain.ErrValidation, err)
		}
		res.Title = strings.TrimSpace(m.Title)
		res.Summary = strings.TrimSpace(m.Prompt)
		res.Metadata = objectOrNil(m.Metadata)
		items := m.Images
		if dom == domain.DomainVideo {
			items = m.Videos
		}
		for i, it := range items {
			key, u, err := d.locate(it.StorageKey, it.URL)
			if err != nil {
				return nil, err
			}
			pos := i
			if it.Index != nil {
				pos = *it.Index
			}
			a := domain.Artifact{
				Domain:          dom,
				Position:        pos,
				StorageKey:      key,
				URL:             u,
				MIME:            it.MIME,
				Width:           it.Width,
				Height:          it.Height,
				DurationSeconds: it.DurationSeconds,
				Bytes:           it.Bytes,
			}
			if it.ThumbnailURL != "" {
				a.Metadata = mustJSON(map[string]any{"thumbnail_url": it.ThumbnailURL})
			}
			res.Items = append(res.Items, a)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported domain %q", domain.ErrValidation, dom)
	}

	if len(res.Items) == 0 {
		return nil, fmt.Errorf("%w: result has no %ss", domain.ErrValidation, domain.ArtifactKind(dom))
	}
	seen := make(map[int]bool, len(res.Items))
	for _, a := range res.Items {
		if seen[a.Position] {
			return nil, fmt.Errorf("%w: duplicate %s position %d", domain.ErrValidation, domain.ArtifactKind(dom), a.Position)
		}
		seen[a.Position] = true
	}
	return res, nil
}

func (d *Decoder) locate(key, rawURL string) (string, string, error) {
	if d.locator == nil {
		return strings.TrimSpace(key), strings.TrimSpace(rawURL), nil
	}
	k, u, err := d.locator.Resolve(key, rawURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return k, u, nil
}

func objectOrNil(raw json.RawMessage) json.RawMessage {
	if !hasValue(raw) {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

func countWords(s string) int {
	return len(strings.Fields(s))
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
