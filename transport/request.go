package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"time"

	"github.com/hedeqiang/tether/retry"
)

// RequestOption customizes a single call.
type RequestOption func(*requestOptions)

type requestOptions struct {
	headers     http.Header
	query       url.Values
	body        any
	mode        ParseMode
	timeout     *time.Duration
	credentials *CredentialsMode
	retry       *retry.Policy
	noRetry     bool
	signals     []context.Context
}

// Header sets a request header, replacing any default of the same name.
func Header(key, value string) RequestOption {
	return func(o *requestOptions) {
		o.headers[textproto.CanonicalMIMEHeaderKey(key)] = []string{value}
	}
}

// Headers sets several request headers.
func Headers(h http.Header) RequestOption {
	return func(o *requestOptions) {
		for k, vs := range h {
			o.headers[textproto.CanonicalMIMEHeaderKey(k)] = append([]string(nil), vs...)
		}
	}
}

// Query adds query parameters.
func Query(q url.Values) RequestOption {
	return func(o *requestOptions) {
		if o.query == nil {
			o.query = make(url.Values)
		}
		for k, vs := range q {
			o.query[k] = append(o.query[k], vs...)
		}
	}
}

// Body sets the request body. See Client.Post for the accepted types.
func Body(body any) RequestOption {
	return func(o *requestOptions) {
		o.body = body
	}
}

// As forces the parse mode instead of inferring it from Content-Type.
func As(mode ParseMode) RequestOption {
	return func(o *requestOptions) {
		o.mode = mode
	}
}

// Timeout overrides the per-attempt timeout. Zero disables it.
func Timeout(d time.Duration) RequestOption {
	return func(o *requestOptions) {
		o.timeout = &d
	}
}

// UseCredentials overrides the cookie policy.
func UseCredentials(m CredentialsMode) RequestOption {
	return func(o *requestOptions) {
		o.credentials = &m
	}
}

// Retry overrides the retry policy.
func Retry(p retry.Policy) RequestOption {
	return func(o *requestOptions) {
		o.retry = &p
		o.noRetry = false
	}
}

// NoRetry disables retries for the call.
func NoRetry() RequestOption {
	return func(o *requestOptions) {
		o.retry = nil
		o.noRetry = true
	}
}

// Signal adds another cancellation source to the call.
func Signal(ctx context.Context) RequestOption {
	return func(o *requestOptions) {
		if ctx != nil {
			o.signals = append(o.signals, ctx)
		}
	}
}

// payload is an encoded request body that can be replayed on retries.
type payload struct {
	data        []byte
	contentType string
	// multipart bodies must carry their own boundary type
	form bool
}

func (p *payload) reader() io.Reader {
	if p == nil {
		return nil
	}
	return bytes.NewReader(p.data)
}

// applyContentType fixes up Content-Type for the payload.
func (p *payload) applyContentType(h http.Header) {
	if p == nil {
		return
	}
	if p.form {
		h.Del("Content-Type")
		h.Set("Content-Type", p.contentType)
		return
	}
	if p.contentType != "" && h.Get("Content-Type") == "" {
		h.Set("Content-Type", p.contentType)
	}
}

func encodeBody(body any) (*payload, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case *FormData:
		data, ct, err := b.encode()
		if err != nil {
			return nil, fmt.Errorf("transport: encode form: %w", err)
		}
		return &payload{data: data, contentType: ct, form: true}, nil
	case url.Values:
		return &payload{data: []byte(b.Encode()), contentType: "application/x-www-form-urlencoded"}, nil
	case json.RawMessage:
		return &payload{data: b, contentType: "application/json"}, nil
	case []byte:
		return &payload{data: b}, nil
	case string:
		return &payload{data: []byte(b), contentType: "text/plain; charset=utf-8"}, nil
	case io.Reader:
		data, err := io.ReadAll(b)
		if err != nil {
			return nil, fmt.Errorf("transport: read body: %w", err)
		}
		return &payload{data: data}, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("transport: marshal body: %w", err)
		}
		return &payload{data: data, contentType: "application/json"}, nil
	}
}

// FormData builds a multipart/form-data body. Any Content-Type header set on
// the client or the call is replaced by the multipart type with its boundary.
type FormData struct {
	parts []formPart
}

type formPart struct {
	name     string
	filename string
	value    []byte
}

// NewFormData creates an empty form.
func NewFormData() *FormData {
	return &FormData{}
}

// Field appends a text field.
func (f *FormData) Field(name, value string) *FormData {
	f.parts = append(f.parts, formPart{name: name, value: []byte(value)})
	return f
}

// File appends a file part.
func (f *FormData) File(name, filename string, content []byte) *FormData {
	f.parts = append(f.parts, formPart{name: name, filename: filename, value: content})
	return f
}

func (f *FormData) encode() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range f.parts {
		var (
			part io.Writer
			err  error
		)
		if p.filename != "" {
			part, err = w.CreateFormFile(p.name, p.filename)
		} else {
			part, err = w.CreateFormField(p.name)
		}
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(p.value); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
