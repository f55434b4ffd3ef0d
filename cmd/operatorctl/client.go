package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kiranshivaraju/operator-service/internal/api"
	mw "github.com/kiranshivaraju/operator-service/internal/api/middleware"
	"github.com/kiranshivaraju/operator-service/internal/signature"
	"github.com/spf13/viper"
)

// client is a thin HTTP client for the operator routes.
type client struct {
	baseURL string
	admin   string
	http    *http.Client
}

func newClient(v *viper.Viper) *client {
	return &client{
		baseURL: strings.TrimSuffix(v.GetString("url"), "/"),
		admin:   v.GetString("admin"),
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

// apiError is a non-2xx answer from the service.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// do sends a request to path under the operator base path. When out is an
// io.Writer the raw body is copied to it, otherwise it is decoded as JSON.
func (c *client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	resp, err := c.send(ctx, method, path, query, body, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if w, ok := out.(io.Writer); ok {
		_, err := io.Copy(w, resp.Body)
		return err
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) send(ctx context.Context, method, path string, query url.Values, body any, header http.Header) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	target := c.baseURL + api.BasePath + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return nil, err
	}
	for k, vals := range header {
		req.Header[k] = vals
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.admin != "" {
		req.Header.Set(mw.AdminHeader, c.admin)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return &apiError{Status: resp.StatusCode, Message: body.Error}
	}
	return &apiError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
}

// signer produces the owner, nonce and signature triple for a request.
type signer struct {
	key   string
	owner string
	nonce string
}

func newSigner(v *viper.Viper) (*signer, error) {
	key := v.GetString("key")
	if key == "" {
		return nil, fmt.Errorf("a signing key is required (--key or %s_KEY)", envPrefix)
	}
	s := &signer{key: key, owner: v.GetString("owner"), nonce: v.GetString("nonce")}
	if s.owner == "" {
		pk, err := signature.ParsePrivateKey(key)
		if err != nil {
			return nil, err
		}
		s.owner = signature.PubkeyToAddress(pk.PubKey())
	}
	if s.nonce == "" {
		s.nonce = strconv.FormatInt(time.Now().UnixMilli(), 10)
	}
	return s, nil
}

// sign signs owner+jobID+nonce.
func (s *signer) sign(jobID string) (string, error) {
	return signature.Sign(s.key, s.owner+jobID+s.nonce)
}
