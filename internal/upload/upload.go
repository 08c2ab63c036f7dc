// Package upload sends generated images to the external upload service, which
// answers with the public url the artifact will point at.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrEmptyImage = errors.New("empty image")

// Result: ответ сервиса загрузки.
type Result struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client for {baseURL}/uploadfile. A nil httpClient gets a
// 30s timeout client.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Upload posts the jpeg as multipart field "file".
func (c *Client) Upload(ctx context.Context, image []byte, prompt, key string) (Result, error) {
	if len(image) == 0 {
		return Result{}, ErrEmptyImage
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, FileName(prompt, key)))
	h.Set("Content-Type", "image/jpeg")
	part, err := mw.CreatePart(h)
	if err != nil {
		return Result{}, fmt.Errorf("create form part: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return Result{}, fmt.Errorf("write form part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Result{}, fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/uploadfile", &body)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("upload: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return Result{}, fmt.Errorf("decode upload response: %w", err)
	}
	if res.URL == "" {
		return Result{}, errors.New("upload: response without url")
	}
	return res, nil
}

// FileName: color-palette-<hash>-<slug>-<key>.jpeg
func FileName(prompt, key string) string {
	hash := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("color-palette-%s-%s-%s.jpeg", hash, Slugify(prompt), key)
}

var (
	spaces  = regexp.MustCompile(`\s+`)
	nonWord = regexp.MustCompile(`[^\w\-]+`)
	dashes  = regexp.MustCompile(`\-\-+`)
)

// Slugify lowercases text and keeps word characters separated by single dashes.
func Slugify(text string) string {
	if text == "" {
		return ""
	}
	s := strings.ToLower(text)
	s = spaces.ReplaceAllString(s, "-")
	s = nonWord.ReplaceAllString(s, "")
	s = dashes.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
