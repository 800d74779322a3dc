package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultUpstashKeyPrefix = "zoo:"
	maxResponseSizeBytes    = 4 << 20
)

// insertScript stores the document only when the key is new and appends its
// id to the collection index in the same step.
const insertScript = `if redis.call('SET', KEYS[1], ARGV[2], 'NX') then
  redis.call('RPUSH', KEYS[2], ARGV[1])
  return 1
end
return 0`

// casScript replaces the document only when its stored version matches.
// Returns -1 when missing, 0 on version mismatch, 1 on success.
const casScript = `local cur = redis.call('GET', KEYS[1])
if not cur then return -1 end
local doc = cjson.decode(cur)
if tonumber(doc['version']) ~= tonumber(ARGV[1]) then return 0 end
redis.call('SET', KEYS[1], ARGV[2])
return 1`

type UpstashConfig struct {
	URL       string        `envconfig:"URL" split_words:"true" required:"true"`
	Token     string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	Timeout   time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
	KeyPrefix string        `envconfig:"KEY_PREFIX" split_words:"true" default:"zoo:"`
}

// UpstashOption customizes UpstashStore.
type UpstashOption func(*UpstashStore)

func WithHTTPClient(client *http.Client) UpstashOption {
	return func(s *UpstashStore) {
		if client != nil {
			s.httpClient = client
		}
	}
}

func WithKeyPrefix(prefix string) UpstashOption {
	return func(s *UpstashStore) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

// UpstashStore keeps documents in Upstash Redis via its REST API. Each
// document lives at <prefix><collection>:<id> and each collection keeps an
// insertion-ordered id list at <prefix><collection>:ids.
type UpstashStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
}

var _ Store = (*UpstashStore)(nil)

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func NewUpstashStore(cfg UpstashConfig, opts ...UpstashOption) (*UpstashStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	store := &UpstashStore{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		keyPrefix:  defaultUpstashKeyPrefix,
	}
	if p := strings.TrimSpace(cfg.KeyPrefix); p != "" {
		store.keyPrefix = p
	}

	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

func (s *UpstashStore) Collection(name string) Collection {
	return &upstashCollection{store: s, name: name}
}

func (s *UpstashStore) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}

// upstashEnvelope is the stored value: the document body plus its version.
type upstashEnvelope struct {
	Version int64           `json:"version"`
	Data    json.RawMessage `json:"data"`
}

type upstashCollection struct {
	store *UpstashStore
	name  string
}

func (c *upstashCollection) docKey(id string) string {
	return c.store.keyPrefix + c.name + ":" + id
}

func (c *upstashCollection) indexKey() string {
	return c.store.keyPrefix + c.name + ":ids"
}

func (c *upstashCollection) List(ctx context.Context) ([]Document, error) {
	resp, err := c.store.exec(ctx, []any{"LRANGE", c.indexKey(), 0, -1})
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := decodeResult(resp.Result, &ids); err != nil {
		return nil, fmt.Errorf("decode collection index: %w", err)
	}
	if len(ids) == 0 {
		return []Document{}, nil
	}

	cmd := make([]any, 0, len(ids)+1)
	cmd = append(cmd, "MGET")
	for _, id := range ids {
		cmd = append(cmd, c.docKey(id))
	}
	resp, err = c.store.exec(ctx, cmd)
	if err != nil {
		return nil, err
	}
	var values []*string
	if err := decodeResult(resp.Result, &values); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}

	out := make([]Document, 0, len(ids))
	for i, id := range ids {
		if i >= len(values) || values[i] == nil {
			continue
		}
		doc, err := decodeEnvelope(id, *values[i])
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (c *upstashCollection) FindByID(ctx context.Context, id string) (Document, error) {
	if err := validateID(id); err != nil {
		return Document{}, err
	}
	resp, err := c.store.exec(ctx, []any{"GET", c.docKey(id)})
	if err != nil {
		return Document{}, err
	}
	var encoded *string
	if err := decodeResult(resp.Result, &encoded); err != nil {
		return Document{}, fmt.Errorf("decode document payload: %w", err)
	}
	if encoded == nil {
		return Document{}, ErrNotFound
	}
	return decodeEnvelope(id, *encoded)
}

func (c *upstashCollection) FindByField(ctx context.Context, field, value string) ([]Document, error) {
	docs, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	out := []Document{}
	for _, doc := range docs {
		if fieldEquals(doc.Data, field, value) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (c *upstashCollection) Insert(ctx context.Context, id string, data json.RawMessage) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := validateBody(data); err != nil {
		return err
	}
	payload, err := json.Marshal(upstashEnvelope{Version: 1, Data: data})
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	resp, err := c.store.exec(ctx, []any{"EVAL", insertScript, 2, c.docKey(id), c.indexKey(), id, string(payload)})
	if err != nil {
		return err
	}
	var created int64
	if err := decodeResult(resp.Result, &created); err != nil {
		return fmt.Errorf("decode insert result: %w", err)
	}
	if created != 1 {
		return fmt.Errorf("%w: %s/%s", ErrDuplicate, c.name, id)
	}
	return nil
}

func (c *upstashCollection) Update(ctx context.Context, id string, mutate Mutator) error {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		doc, err := c.FindByID(ctx, id)
		if err != nil {
			return err
		}
		next, err := mutate(cloneRaw(doc.Data))
		if err != nil {
			return err
		}
		if err := validateBody(next); err != nil {
			return err
		}
		payload, err := json.Marshal(upstashEnvelope{Version: doc.Version + 1, Data: next})
		if err != nil {
			return fmt.Errorf("marshal document: %w", err)
		}

		resp, err := c.store.exec(ctx, []any{"EVAL", casScript, 1, c.docKey(id), doc.Version, string(payload)})
		if err != nil {
			return err
		}
		var outcome int64
		if err := decodeResult(resp.Result, &outcome); err != nil {
			return fmt.Errorf("decode update result: %w", err)
		}
		switch outcome {
		case 1:
			return nil
		case -1:
			return ErrNotFound
		}
	}
	return fmt.Errorf("%w: %s/%s", ErrConflict, c.name, id)
}

func decodeEnvelope(id, encoded string) (Document, error) {
	var env upstashEnvelope
	if err := json.Unmarshal([]byte(encoded), &env); err != nil {
		return Document{}, fmt.Errorf("unmarshal document %s: %w", id, err)
	}
	return Document{ID: id, Version: env.Version, Data: env.Data}, nil
}

func decodeResult(raw json.RawMessage, dst any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	return json.Unmarshal(raw, dst)
}

func (s *UpstashStore) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	if len(command) == 0 {
		return nil, errors.New("empty redis command")
	}

	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}
