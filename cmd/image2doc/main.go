// Package main is the image2doc CLI. It talks directly to the OCR backend,
// which makes it handy for scripting conversions and for checking a
// deployment without the gateway in between.
package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/image2doc/image2doc/internal/config"
	"github.com/image2doc/image2doc/internal/coordinator"
	"github.com/image2doc/image2doc/internal/ocr"
	"github.com/image2doc/image2doc/internal/preprocess"
)

var backendURL string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "image2doc: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "image2doc",
		Short: "Convert images to documents through the OCR backend",
		Long: `image2doc converts scanned images into editable documents (docx, pdf, txt)
by sending them to the OCR backend service.`,
		SilenceUsage: true,
	}
	cfg, _ := config.Load()
	cmd.PersistentFlags().StringVar(&backendURL, "backend", cfg.Backend, "Base URL of the OCR backend")
	cmd.AddCommand(
		newConvertCmd(cfg),
		newLanguagesCmd(),
		newHealthCmd(),
	)
	return cmd
}

func newClient() *ocr.Client {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	return ocr.NewClient(strings.TrimRight(backendURL, "/"), http.DefaultClient, log)
}

func newConvertCmd(cfg *config.Config) *cobra.Command {
	var (
		format    string
		language  string
		output    string
		normalize bool
	)
	cmd := &cobra.Command{
		Use:   "convert <image>",
		Short: "Convert one image file to a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}
			name := filepath.Base(path)

			v := coordinator.ValidateFile(coordinator.Options{
				MaxFileSize:  cfg.MaxFileSize,
				AllowedTypes: cfg.AllowedTypes,
				MaxNameLen:   cfg.MaxNameLen,
			}, name, int64(len(data)), contentTypeFor(name))
			if !v.Valid {
				return fmt.Errorf("invalid image: %s", strings.Join(v.Errors, "; "))
			}

			if normalize {
				processed, meta, err := preprocess.Normalize(bytes.NewReader(data))
				if err != nil {
					return fmt.Errorf("normalize image: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "normalized to %dx%d\n", meta.Width, meta.Height)
				data = processed
			}

			client := newClient()
			res, err := client.Convert(cmd.Context(), ocr.Request{
				FileName:    name,
				ContentType: contentTypeFor(name),
				Data:        bytes.NewReader(data),
				Size:        int64(len(data)),
				Format:      format,
				Language:    language,
			}, func(frac float64) {
				fmt.Fprintf(cmd.ErrOrStderr(), "\ruploading %3.0f%%", frac*100)
			})
			fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			out := output
			if out == "" {
				out = res.FileName
			}
			if out == "" {
				out = strings.TrimSuffix(name, filepath.Ext(name)) + "." + format
			}
			if err := os.WriteFile(out, res.Content, 0o644); err != nil {
				return fmt.Errorf("write document: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes, %d characters recognized)\n", out, len(res.Content), res.TextLength)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "t", cfg.DefaultFormat, "Target document format (docx, pdf, txt)")
	cmd.Flags().StringVarP(&language, "lang", "l", cfg.DefaultLanguage, "OCR language code")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file path (defaults to the backend's name)")
	cmd.Flags().BoolVar(&normalize, "normalize", false, "Downscale and grayscale the image before uploading")
	return cmd
}

func newLanguagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List the language packs installed on the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			langs, err := newClient().Languages(cmd.Context())
			if err != nil {
				return err
			}
			for _, l := range langs {
				fmt.Fprintln(cmd.OutOrStdout(), l)
			}
			return nil
		},
	}
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check whether the OCR backend is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().Health(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "backend is healthy")
			return nil
		},
	}
}

func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".bmp":
		return "image/bmp"
	case ".tif", ".tiff":
		return "image/tiff"
	default:
		return "image/png"
	}
}
