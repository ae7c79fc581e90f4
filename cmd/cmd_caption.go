// cmd_caption.go - caption Command
// Hauptfunktionen: CaptionHandler, captionLocal, captionRemote, printDebug
package cmd

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MichaelCStrahl/vision-voice-project/api"
	"github.com/MichaelCStrahl/vision-voice-project/caption"
	"github.com/MichaelCStrahl/vision-voice-project/envconfig"
	"github.com/MichaelCStrahl/vision-voice-project/logutil"
)

type captionOptions struct {
	Debug  bool
	Stream bool
	Dir    string
}

// artifactPaths gibt die Pfade aus --dir oder aus der Umgebung zurueck
func artifactPaths(dir string) caption.Paths {
	if dir != "" {
		return caption.PathsInDir(dir)
	}
	return caption.PathsFromEnv()
}

// CaptionHandler - Erzeugt Captions fuer eine oder mehrere Bilddateien
func CaptionHandler(cmd *cobra.Command, args []string) error {
	local, _ := cmd.Flags().GetBool("local")

	var opts captionOptions
	opts.Debug, _ = cmd.Flags().GetBool("debug")
	opts.Stream, _ = cmd.Flags().GetBool("stream")
	opts.Dir, _ = cmd.Flags().GetString("dir")

	if local {
		return captionLocal(cmd, args, opts)
	}
	return captionRemote(cmd, args, opts)
}

// prefix gibt bei mehreren Dateien den Dateinamen vor der Caption aus
func prefix(w io.Writer, args []string, path string) {
	if len(args) > 1 {
		fmt.Fprintf(w, "%s: ", path)
	}
}

func captionRemote(cmd *cobra.Command, args []string, opts captionOptions) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		prefix(out, args, path)
		if opts.Stream {
			err := client.CaptionStream(cmd.Context(), path, data, func(r api.CaptionStreamResponse) error {
				if r.Done {
					fmt.Fprintln(out)
					return nil
				}
				printToken(out, r.Index, r.Token)
				return nil
			})
			if err != nil {
				return err
			}
			continue
		}

		resp, err := client.Caption(cmd.Context(), path, data, opts.Debug)
		if err != nil {
			return err
		}

		fmt.Fprintln(out, resp.Caption)
		if resp.Debug != nil {
			printDebug(out, *resp.Debug)
		}
	}

	return nil
}

func captionLocal(cmd *cobra.Command, args []string, opts captionOptions) error {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))

	engine := caption.NewEngine()
	if err := engine.Load(cmd.Context(), artifactPaths(opts.Dir)); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		var fn caption.StepFunc
		if opts.Stream {
			fn = func(step caption.Step) error {
				printToken(out, step.Index, step.Token)
				return nil
			}
		}

		prefix(out, args, path)
		res, err := engine.Generate(cmd.Context(), data, fn)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		if opts.Stream {
			fmt.Fprintln(out)
		} else {
			fmt.Fprintln(out, res.Caption)
		}

		if opts.Debug {
			summary, err := engine.Diagnose(data)
			if err != nil {
				return err
			}

			sum := sha256.Sum256(data)
			printDebug(out, api.CaptionDebug{
				SHA256:    hex.EncodeToString(sum[:]),
				Bytes:     len(data),
				ImageMean: summary.Mean,
				ImageStd:  summary.Std,
				ImageMin:  summary.Min,
				ImageMax:  summary.Max,
			})
			fmt.Fprintf(out, "  steps     %d (%s)\n", res.Steps, res.Reason)
		}
	}

	return nil
}

// printToken schreibt ein gestreamtes Token, leere Tokens bleiben unsichtbar
func printToken(w io.Writer, index int, token string) {
	if token == "" {
		return
	}
	if index > 0 {
		fmt.Fprint(w, " ")
	}
	fmt.Fprint(w, token)
}

func printDebug(w io.Writer, d api.CaptionDebug) {
	fmt.Fprintf(w, "  sha256    %s\n", d.SHA256)
	fmt.Fprintf(w, "  bytes     %d\n", d.Bytes)
	fmt.Fprintf(w, "  mean/std  %.6f / %.6f\n", d.ImageMean, d.ImageStd)
	fmt.Fprintf(w, "  min/max   %.6f / %.6f\n", d.ImageMin, d.ImageMax)
}

// newCaptionCmd - Erstellt den caption Command
func newCaptionCmd() *cobra.Command {
	captionCmd := &cobra.Command{
		Use:     "caption FILE [FILE...]",
		Short:   "Generate a caption for one or more images",
		Args:    cobra.MinimumNArgs(1),
		PreRunE: checkServerHeartbeat,
		RunE:    CaptionHandler,
	}

	captionCmd.Flags().Bool("local", false, "Load the artifacts in-process instead of calling the server")
	captionCmd.Flags().String("dir", "", "Artifacts directory for --local (default from the environment)")
	captionCmd.Flags().Bool("debug", false, "Show image statistics after preprocessing")
	captionCmd.Flags().Bool("stream", false, "Print tokens as they are decoded")
	return captionCmd
}
