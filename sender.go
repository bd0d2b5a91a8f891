package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	loghttp "github.com/motemen/go-loghttp"
	log "github.com/sirupsen/logrus"
)

// The ports the local ingestion cluster listens on. Only the first is used
// unless configured otherwise.
var candidatePorts = []int{5080, 5090, 5070}

// A Sender delivers one batch of records. An error aborts the batch run.
type Sender interface {
	Send(records []*LogRecord) error
}

// An HTTPSender POSTs each batch as a JSON array to the ingestion endpoint
// on every configured port, in order, with HTTP Basic auth.
type HTTPSender struct {
	Host   string
	Ports  []int
	Org    string
	Stream string

	compression string
	credential  string
	client      *http.Client
}

// BasicCredential encodes a user and password for the Authorization header
func BasicCredential(user, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + password))
}

// NewHTTPSender returns an HTTPSender using a pooled clean HTTP client. The
// credential is the already base64 encoded "user:password" pair.
func NewHTTPSender(host string, ports []int, org, stream, credential string) *HTTPSender {
	for _, port := range ports {
		if !isCandidatePort(port) {
			log.Warnf("Port %d is not one of the known ingestion ports %v", port, candidatePorts)
		}
	}

	return &HTTPSender{
		Host:       host,
		Ports:      ports,
		Org:        org,
		Stream:     stream,
		credential: credential,
		client:     cleanhttp.DefaultPooledClient(),
	}
}

// SetCompression enables compressing request bodies. Supported kinds are
// "gzip", "zstd", and "none" (or empty).
func (s *HTTPSender) SetCompression(kind string) error {
	switch kind {
	case "", "none":
		s.compression = ""
	case "gzip", "zstd":
		s.compression = kind
	default:
		return fmt.Errorf("unsupported compression '%s'", kind)
	}

	return nil
}

// LogTraffic wraps the transport so every request and response is logged
// at debug level.
func (s *HTTPSender) LogTraffic() {
	s.client.Transport = &loghttp.Transport{
		LogRequest: func(req *http.Request) {
			log.Debugf("--> %s %s (%d bytes)", req.Method, req.URL, req.ContentLength)
		},
		LogResponse: func(resp *http.Response) {
			log.Debugf("<-- %d %s", resp.StatusCode, resp.Request.URL)
		},
		Transport: s.client.Transport,
	}
}

// URLFor returns the ingestion URL on the given port
func (s *HTTPSender) URLFor(port int) string {
	apiURL := url.URL{
		Scheme: "http",
		Host:   s.Host + ":" + strconv.Itoa(port),
		Path:   fmt.Sprintf("/api/%s/%s/_json", s.Org, s.Stream),
	}

	return apiURL.String()
}

func (s *HTTPSender) Send(records []*LogRecord) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("unable to encode batch: %w", err)
	}

	body, err := s.compress(data)
	if err != nil {
		return fmt.Errorf("unable to compress batch: %w", err)
	}

	for _, port := range s.Ports {
		start := time.Now()
		err := s.post(s.URLFor(port), body)
		if err != nil {
			return err
		}
		log.Infof("port %d time : %d", port, time.Since(start).Milliseconds())
	}

	return nil
}

func (s *HTTPSender) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("unable to create http request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+s.credential)
	if s.compression != "" {
		req.Header.Set("Content-Encoding", s.compression)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed posting batch to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("bad response from %s: %d %s", url, resp.StatusCode, string(body))
	}

	// Drain so the connection goes back to the pool
	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

func (s *HTTPSender) compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	switch s.compression {
	case "gzip":
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}

	case "zstd":
		w, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}

	default:
		return data, nil
	}

	return buf.Bytes(), nil
}

func isCandidatePort(port int) bool {
	for _, candidate := range candidatePorts {
		if port == candidate {
			return true
		}
	}

	return false
}
