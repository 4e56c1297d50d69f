package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/convictionmarket/internal/crypto"
)

type client struct {
	base   string
	http   *http.Client
	signer *crypto.Signer
	out    io.Writer
	now    func() time.Time
}

func newAPIClient(base string, out io.Writer) *client {
	return &client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
		out:  out,
		now:  time.Now,
	}
}

// apiError is a non-2xx response.
type apiError struct {
	Status int    `json:"-"`
	Code   string `json:"code"`
	Msg    string `json:"error"`
}

func (e *apiError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Msg)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Msg)
}

// call sends one request and decodes the response body into dst when dst
// is non-nil. body is marshalled to JSON. The request is signed when the
// client holds a signer.
func (c *client) call(ctx context.Context, method, path string, body, dst any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.signer != nil {
		if err := c.signer.Authorize(req, payload, c.now()); err != nil {
			return err
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode}
		if json.Unmarshal(raw, apiErr) != nil || apiErr.Msg == "" {
			apiErr.Msg = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if dst == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// print sends a request and writes the indented JSON response to c.out.
func (c *client) print(ctx context.Context, method, path string, body any) error {
	var out json.RawMessage
	if err := c.call(ctx, method, path, body, &out); err != nil {
		return err
	}
	if len(out) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, out, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err := c.out.Write(buf.Bytes())
	return err
}
