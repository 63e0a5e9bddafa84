package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hedeqiang/tether/transport"
)

// requestFlags are shared by get, head and request.
type requestFlags struct {
	headers []string
	query   []string
	noRetry bool
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.headers, "header", "H", nil, "extra header as 'Key: value' (repeatable)")
	cmd.Flags().StringArrayVarP(&f.query, "query", "q", nil, "query parameter as key=value (repeatable)")
	cmd.Flags().BoolVar(&f.noRetry, "no-retry", false, "disable retries for this call")
}

func (f *requestFlags) options() ([]transport.RequestOption, error) {
	var opts []transport.RequestOption

	h := http.Header{}
	for _, kv := range f.headers {
		k, v, ok := strings.Cut(kv, ":")
		if !ok {
			return nil, fmt.Errorf("invalid header %q, want 'Key: value'", kv)
		}
		h.Add(strings.TrimSpace(k), strings.TrimSpace(v))
	}
	if len(h) > 0 {
		opts = append(opts, transport.Headers(h))
	}

	q := url.Values{}
	for _, kv := range f.query {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("invalid query parameter %q, want key=value", kv)
		}
		q.Add(k, v)
	}
	if len(q) > 0 {
		opts = append(opts, transport.Query(q))
	}

	if f.noRetry {
		opts = append(opts, transport.NoRetry())
	}
	return opts, nil
}

func (a *app) getCmd() *cobra.Command {
	var f requestFlags
	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Issue a GET request and print the response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := f.options()
			if err != nil {
				return err
			}
			resp, err := a.client.HTTP().Get(cmd.Context(), args[0], opts...)
			if err != nil {
				return fmt.Errorf("GET %s: %w", args[0], err)
			}
			return printResponse(cmd.OutOrStdout(), a.output, resp)
		},
	}
	f.register(cmd)
	return cmd
}

func (a *app) headCmd() *cobra.Command {
	var f requestFlags
	cmd := &cobra.Command{
		Use:   "head <path>",
		Short: "Issue a HEAD request and print the status and headers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := f.options()
			if err != nil {
				return err
			}
			resp, err := a.client.HTTP().Head(cmd.Context(), args[0], opts...)
			if err != nil {
				return fmt.Errorf("HEAD %s: %w", args[0], err)
			}
			return printResponse(cmd.OutOrStdout(), a.output, resp)
		},
	}
	f.register(cmd)
	return cmd
}

func (a *app) requestCmd() *cobra.Command {
	var (
		f      requestFlags
		method string
		data   string
	)
	cmd := &cobra.Command{
		Use:   "request <path>",
		Short: "Issue a request with any method",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := f.options()
			if err != nil {
				return err
			}
			if data != "" {
				opts = append(opts, transport.Body(bodyOf(data)))
			}
			m := strings.ToUpper(method)
			resp, err := a.client.HTTP().Request(cmd.Context(), m, args[0], opts...)
			if err != nil {
				return fmt.Errorf("%s %s: %w", m, args[0], err)
			}
			return printResponse(cmd.OutOrStdout(), a.output, resp)
		},
	}
	f.register(cmd)
	cmd.Flags().StringVarP(&method, "method", "X", http.MethodGet, "HTTP method")
	cmd.Flags().StringVarP(&data, "data", "d", "", "request body; valid JSON is sent as JSON, anything else as text")
	return cmd
}

// bodyOf sends valid JSON verbatim and anything else as text.
func bodyOf(data string) any {
	if json.Valid([]byte(data)) {
		return json.RawMessage(data)
	}
	return data
}
