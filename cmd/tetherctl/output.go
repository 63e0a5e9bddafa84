package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hedeqiang/tether/transport"
)

// responseView is how a response is printed in json and yaml mode.
type responseView struct {
	Status  int               `json:"status" yaml:"status"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body    any               `json:"body,omitempty" yaml:"body,omitempty"`
}

func viewOf(resp *transport.Response) (responseView, error) {
	v := responseView{Status: resp.StatusCode, Headers: make(map[string]string, len(resp.Header))}
	for k := range resp.Header {
		v.Headers[k] = resp.Header.Get(k)
	}
	if resp.Mode == transport.ModeResponse {
		return v, nil
	}
	body, err := resp.Data()
	if err != nil {
		return v, err
	}
	if b, ok := body.([]byte); ok {
		body = fmt.Sprintf("<%d bytes>", len(b))
	}
	v.Body = body
	return v, nil
}

func printResponse(w io.Writer, format string, resp *transport.Response) error {
	if strings.ToLower(format) == "raw" {
		if resp.Mode == transport.ModeResponse {
			_, err := fmt.Fprintln(w, resp.Status)
			return err
		}
		_, err := w.Write(resp.Body)
		return err
	}
	v, err := viewOf(resp)
	if err != nil {
		return err
	}
	return printValue(w, format, v)
}

func printValue(w io.Writer, format string, v any) error {
	switch strings.ToLower(format) {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "json", "raw":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
