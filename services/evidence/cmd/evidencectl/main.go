package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	gos3 "evidenced/pkg/s3"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "evidencectl",
		Short:         "Utility for inspecting stored evidence",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newEvidenceCommand())
	cmd.AddCommand(newPresignCommand())
	return cmd
}

func newEvidenceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evidence",
		Short: "Evidence record operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newEvidenceGetCommand())
	cmd.AddCommand(newEvidenceURLCommand())
	return cmd
}

func newEvidenceGetCommand() *cobra.Command {
	var (
		apiBaseURL string
		output     string
	)

	cmd := &cobra.Command{
		Use:   "get <evidence-id>",
		Short: "Fetch one evidence record from the API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			body, err := apiGet(ctx, apiBaseURL, "/evidence/"+url.PathEscape(args[0]))
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), body, output)
		},
	}

	cmd.Flags().StringVar(&apiBaseURL, "api", "", "Base URL of the evidenced API (e.g. http://localhost:4002)")
	cmd.Flags().StringVar(&output, "output", "json", "Output format: json or yaml")
	_ = cmd.MarkFlagRequired("api")
	return cmd
}

func newEvidenceURLCommand() *cobra.Command {
	var (
		apiBaseURL string
		ttl        int
	)

	cmd := &cobra.Command{
		Use:   "url <evidence-id>",
		Short: "Request a time-limited download link for an evidence record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			path := fmt.Sprintf("/evidence/%s/download?ttl=%d", url.PathEscape(args[0]), ttl)
			body, err := apiGet(ctx, apiBaseURL, path)
			if err != nil {
				return err
			}
			var resp struct {
				URL string `json:"url"`
			}
			if err := json.Unmarshal(body, &resp); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.URL)
			return nil
		},
	}

	cmd.Flags().StringVar(&apiBaseURL, "api", "", "Base URL of the evidenced API (e.g. http://localhost:4002)")
	cmd.Flags().IntVar(&ttl, "ttl", 300, "Link lifetime in seconds (max 3600)")
	_ = cmd.MarkFlagRequired("api")
	return cmd
}

func newPresignCommand() *cobra.Command {
	var (
		bucket string
		key    string
		ttl    int
	)

	cmd := &cobra.Command{
		Use:   "presign",
		Short: "Presign a GET for an object directly against S3",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			s3Client, err := gos3.NewClientFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("s3 client: %w", err)
			}
			signed, err := s3Client.PresignGet(ctx, bucket, key, time.Duration(ttl)*time.Second)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}

	cmd.Flags().StringVar(&bucket, "bucket", "", "Bucket holding the object")
	cmd.Flags().StringVar(&key, "key", "", "Object key")
	cmd.Flags().IntVar(&ttl, "ttl", 300, "Link lifetime in seconds")
	_ = cmd.MarkFlagRequired("bucket")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func apiGet(ctx context.Context, baseURL, path string) ([]byte, error) {
	base := strings.TrimRight(baseURL, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("api returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func render(w io.Writer, body []byte, format string) error {
	switch format {
	case "json":
		var buf bytes.Buffer
		if err := json.Indent(&buf, body, "", "  "); err != nil {
			return fmt.Errorf("format response: %w", err)
		}
		fmt.Fprintln(w, buf.String())
		return nil
	case "yaml":
		var doc map[string]any
		if err := json.Unmarshal(body, &doc); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		out, err := yaml.Marshal(doc)
		if err != nil {
			return fmt.Errorf("format response: %w", err)
		}
		_, err = w.Write(out)
		return err
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
