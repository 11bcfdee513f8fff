package s3

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const metaHeaderPrefix = "X-Amz-Meta-"

// NewMockForTests returns a Store whose client talks to an in-process fake
// bucket. The fake serves the object calls the store makes: PutObject,
// GetObject, HeadObject, DeleteObject and ListObjectsV2.
func NewMockForTests() *Store {
	bucket := &fakeBucket{objects: make(map[string]fakeObject)}
	cfg, _ := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: bucket}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
	})
	return &Store{client: client, bucket: "mock-bucket"}
}

type fakeObject struct {
	body        []byte
	contentType string
	metadata    map[string]string
	etag        string
	modified    time.Time
}

// fakeBucket is an http.RoundTripper holding the objects of one bucket.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string]fakeObject
}

// RoundTrip implements http.RoundTripper. Paths are /<bucket>/<key>.
func (b *fakeBucket) RoundTrip(req *http.Request) (*http.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, key, _ := strings.Cut(strings.TrimPrefix(req.URL.Path, "/"), "/")
	switch {
	case req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2":
		return b.list(req.URL.Query().Get("prefix"))
	case req.Method == http.MethodPut:
		return b.put(key, req)
	case req.Method == http.MethodGet, req.Method == http.MethodHead:
		obj, ok := b.objects[key]
		if !ok {
			return missing(req.Method), nil
		}
		body := obj.body
		if req.Method == http.MethodHead {
			body = nil
		}
		return respond(http.StatusOK, objectHeaders(obj), body), nil
	case req.Method == http.MethodDelete:
		delete(b.objects, key)
		return respond(http.StatusNoContent, nil, nil), nil
	}
	return respond(http.StatusNotImplemented, nil, nil), nil
}

func (b *fakeBucket) put(key string, req *http.Request) (*http.Response, error) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	if decoded, ok := decodeAWSChunked(body); ok {
		body = decoded
	}
	md := make(map[string]string)
	for name, values := range req.Header {
		if len(name) > len(metaHeaderPrefix) && strings.EqualFold(name[:len(metaHeaderPrefix)], metaHeaderPrefix) && len(values) > 0 {
			md[strings.ToLower(name[len(metaHeaderPrefix):])] = values[0]
		}
	}
	sum := md5.Sum(body)
	obj := fakeObject{
		body:        body,
		contentType: req.Header.Get("Content-Type"),
		metadata:    md,
		etag:        hex.EncodeToString(sum[:]),
		modified:    time.Now().UTC().Truncate(time.Second),
	}
	b.objects[key] = obj
	return respond(http.StatusOK, http.Header{"Etag": {strconv.Quote(obj.etag)}}, nil), nil
}

type listResult struct {
	XMLName     xml.Name      `xml:"ListBucketResult"`
	IsTruncated bool          `xml:"IsTruncated"`
	Contents    []listContent `xml:"Contents"`
}

type listContent struct {
	Key          string `xml:"Key"`
	Size         int    `xml:"Size"`
	ETag         string `xml:"ETag"`
	LastModified string `xml:"LastModified"`
}

func (b *fakeBucket) list(prefix string) (*http.Response, error) {
	var out listResult
	for key, obj := range b.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		out.Contents = append(out.Contents, listContent{
			Key:          key,
			Size:         len(obj.body),
			ETag:         strconv.Quote(obj.etag),
			LastModified: obj.modified.Format(time.RFC3339),
		})
	}
	sort.Slice(out.Contents, func(i, j int) bool { return out.Contents[i].Key < out.Contents[j].Key })
	body, err := xml.Marshal(out)
	if err != nil {
		return nil, err
	}
	return respond(http.StatusOK, http.Header{"Content-Type": {"application/xml"}}, append([]byte(xml.Header), body...)), nil
}

func objectHeaders(obj fakeObject) http.Header {
	h := http.Header{
		"Content-Length": {strconv.Itoa(len(obj.body))},
		"Content-Type":   {obj.contentType},
		"Etag":           {strconv.Quote(obj.etag)},
		"Last-Modified":  {obj.modified.Format(http.TimeFormat)},
	}
	for k, v := range obj.metadata {
		h.Set(metaHeaderPrefix+k, v)
	}
	return h
}

// missing answers an absent key. HEAD responses carry no body, so callers
// only see the status code there.
func missing(method string) *http.Response {
	if method == http.MethodHead {
		return respond(http.StatusNotFound, nil, nil)
	}
	body := []byte(xml.Header + `<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
	return respond(http.StatusNotFound, http.Header{"Content-Type": {"application/xml"}}, body)
}

func respond(status int, header http.Header, body []byte) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode:    status,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

// decodeAWSChunked unwraps an aws-chunked payload: size-prefixed chunks
// (hex size, optional ";extension") ending with a zero-size chunk, followed
// by optional trailers. It reports false for bodies not in that form.
func decodeAWSChunked(raw []byte) ([]byte, bool) {
	var out []byte
	rest := raw
	for {
		line, after, ok := bytes.Cut(rest, []byte("\r\n"))
		if !ok {
			return nil, false
		}
		sizeField, _, _ := bytes.Cut(line, []byte(";"))
		size, err := strconv.ParseUint(string(sizeField), 16, 32)
		if err != nil {
			return nil, false
		}
		if size == 0 {
			return out, true
		}
		if uint64(len(after)) < size+2 || !bytes.Equal(after[size:size+2], []byte("\r\n")) {
			return nil, false
		}
		out = append(out, after[:size]...)
		rest = after[size+2:]
	}
}
