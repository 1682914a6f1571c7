package main

import (
	"context"
	"encoding/json"
	goflag "flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"github.com/ditsuke/go-curl-impersonate/impersonate"
	"github.com/ditsuke/go-curl-impersonate/impersonate/config"
	"github.com/ditsuke/go-curl-impersonate/impersonate/instrumentation"
	"github.com/ditsuke/go-curl-impersonate/impersonate/models"
)

var (
	version = "0.1.0"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "curl-impersonate [flags] <url>...",
	Short: "Make browser-impersonating HTTP requests",
	Long: `curl-impersonate runs a curl-impersonate build matching the chosen browser and prints
the response, parsed from curl's verbose trace, as JSON.

Examples:
  curl-impersonate https://example.com
  curl-impersonate --impersonate firefox-117 -H 'Accept-Language: de' https://example.com
  curl-impersonate -d '{"q":1}' https://httpbin.org/post
  curl-impersonate --native --select 'h1' https://example.com
  curl-impersonate presets`,
	Version:      version,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRequests(cmd.Context(), cmd.OutOrStdout(), args)
	},
}

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List impersonation targets and the binary each uses on this platform",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listPresets(cmd.OutOrStdout(), runtime.GOOS, runtime.GOARCH)
	},
}

// Flags for the root command
var (
	flagMethod       string
	flagHeaders      []string
	flagData         string
	flagRawFlags     []string
	flagImpersonate  string
	flagBinaryPath   string
	flagTimeout      time.Duration
	flagLocation     bool
	flagVerbose      bool
	flagNative       bool
	flagStrict       bool
	flagConfig       string
	flagEnvFile      string
	flagSelect       string
	flagText         bool
	flagPrintMetrics bool
)

func init() {
	rootCmd.Flags().StringVarP(&flagMethod, "method", "X", "", "HTTP method (GET or POST; POST when --data is set)")
	rootCmd.Flags().StringArrayVarP(&flagHeaders, "header", "H", []string{}, "Header 'Name: Value', can be repeated")
	rootCmd.Flags().StringVarP(&flagData, "data", "d", "", "Request body (implies POST)")
	rootCmd.Flags().StringArrayVar(&flagRawFlags, "flag", []string{}, "Raw flag passed to the binary, can be repeated")
	rootCmd.Flags().StringVar(&flagImpersonate, "impersonate", "", "Browser to impersonate, see 'presets' (default chrome-116)")
	rootCmd.Flags().StringVar(&flagBinaryPath, "binary-path", "", "Directory holding the curl-impersonate binaries")
	rootCmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "Maximum time for the whole transfer")
	rootCmd.Flags().BoolVarP(&flagLocation, "location", "L", false, "Follow redirects")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log the binary and arguments before running")
	rootCmd.Flags().BoolVar(&flagNative, "native", false, "Use the in-process TLS client instead of a binary")
	rootCmd.Flags().BoolVar(&flagStrict, "strict", false, "Fail when the binary cannot run or exits non-zero")
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "YAML file with request defaults")
	rootCmd.Flags().StringVar(&flagEnvFile, "env-file", "", "Load environment variables from file (default .env)")
	rootCmd.Flags().StringVar(&flagSelect, "select", "", "Print the text of elements matching this CSS selector")
	rootCmd.Flags().BoolVar(&flagText, "text", false, "Print the response body with markup removed")
	rootCmd.Flags().BoolVar(&flagPrintMetrics, "print-metrics", false, "Print Prometheus metrics to stderr when done")

	addKlogFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(presetsCmd)
}

// addKlogFlags exposes klog's flags (--v, --logtostderr, ...) on the command line.
func addKlogFlags(fs *pflag.FlagSet) {
	klogFlags := goflag.NewFlagSet("klog", goflag.ContinueOnError)
	klog.InitFlags(klogFlags)
	fs.AddGoFlagSet(klogFlags)
}

// requestOptions assembles request options from flags, then fills the gaps from the config file.
func requestOptions() (models.RequestOptions, *config.File, error) {
	opts := models.RequestOptions{
		Method:             models.Method(flagMethod),
		Flags:              flagRawFlags,
		Timeout:            flagTimeout,
		FollowRedirects:    flagLocation,
		Verbose:            flagVerbose,
		Impersonate:        models.Target(flagImpersonate),
		BinaryOverridePath: flagBinaryPath,
	}
	for _, h := range flagHeaders {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return opts, nil, fmt.Errorf("bad header %q, expected 'Name: Value'", h)
		}
		opts.Headers.Set(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	if flagData != "" {
		opts.Body = flagData
	}
	if opts.Method == "" {
		opts.Method = models.MethodGet
		if opts.Body != nil {
			opts.Method = models.MethodPost
		}
	}

	var file *config.File
	if flagConfig != "" {
		var err error
		if file, err = config.Load(flagConfig); err != nil {
			return opts, nil, err
		}
		file.Apply(&opts)
	}
	if opts.Impersonate == "" {
		opts.Impersonate = models.TargetChrome116
	}
	return opts, file, nil
}

func runRequests(ctx context.Context, w io.Writer, urls []string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var envFiles []string
	if flagEnvFile != "" {
		envFiles = append(envFiles, flagEnvFile)
	}
	if err := config.LoadEnv(envFiles...); err != nil {
		return err
	}

	if flagPrintMetrics {
		cfg := instrumentation.DefaultConfig()
		cfg.MetricsEnabled = true
		shutdown, err := instrumentation.Init(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}
		defer func() {
			if err := instrumentation.WriteMetrics(os.Stderr); err != nil {
				klog.Errorf("failed to write metrics: %v", err)
			}
			_ = shutdown(context.Background())
		}()
	}

	opts, file, err := requestOptions()
	if err != nil {
		return err
	}

	var clientOpts []impersonate.ClientOption
	if flagNative || (file != nil && file.Native()) {
		clientOpts = append(clientOpts, impersonate.WithNativeTransport(nil))
	}
	if flagStrict {
		clientOpts = append(clientOpts, impersonate.WithStrictExit())
	}

	client, err := impersonate.NewClient(urls[0], opts, clientOpts...)
	if err != nil {
		return err
	}

	for _, url := range urls {
		resp, err := client.MakeRequest(ctx, url)
		if err != nil {
			return err
		}
		if err := printResponse(w, resp); err != nil {
			return err
		}
	}
	return nil
}

func printResponse(w io.Writer, resp *models.Response) error {
	switch {
	case flagSelect != "":
		matches, err := resp.Select(flagSelect)
		if err != nil {
			return fmt.Errorf("failed to select %q: %w", flagSelect, err)
		}
		return writeJSON(w, matches)
	case flagText:
		_, err := fmt.Fprintln(w, resp.Text())
		return err
	default:
		return writeJSON(w, resp)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func listPresets(w io.Writer, goos, goarch string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tBINARY")
	for _, target := range impersonate.Targets() {
		binary, err := impersonate.SelectBinary(goos, goarch, target)
		if err != nil {
			binary = "unavailable (" + err.Error() + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\n", target, binary)
	}
	return tw.Flush()
}
