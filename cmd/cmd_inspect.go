// cmd_inspect.go - inspect Command
// Hauptfunktionen: InspectHandler, showArtifacts, dumpTensors
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/MichaelCStrahl/vision-voice-project/caption"
	"github.com/MichaelCStrahl/vision-voice-project/envconfig"
	"github.com/MichaelCStrahl/vision-voice-project/logutil"
	"github.com/MichaelCStrahl/vision-voice-project/ml"
)

const vocabHead = 8

// InspectHandler - Laedt die Artefakte und zeigt eine Zusammenfassung
func InspectHandler(cmd *cobra.Command, _ []string) error {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))

	dir, _ := cmd.Flags().GetString("dir")
	a, err := caption.Load(cmd.Context(), artifactPaths(dir))
	if err != nil {
		return err
	}

	names, _ := cmd.Flags().GetStringSlice("dump")
	if len(names) > 0 {
		return dumpTensors(a, names, cmd.OutOrStdout())
	}

	return showArtifacts(a, cmd.OutOrStdout())
}

// dumpTensors gibt die genannten Gewichtstensoren mit Shape und Werten aus
func dumpTensors(a *caption.Artifacts, names []string, w io.Writer) error {
	for _, name := range names {
		t, ok := a.Tensor(name)
		if !ok {
			return fmt.Errorf("tensor %q not found in %s", name, a.Paths.Weights)
		}

		fmt.Fprintf(w, "%s %v\n", name, t.Shape)
		fmt.Fprintln(w, ml.Dump(t))
		fmt.Fprintln(w)
	}
	return nil
}

func showArtifacts(a *caption.Artifacts, w io.Writer) error {
	tableRender := func(header string, rows func() [][]string) {
		fmt.Fprintln(w, " ", header)
		table := tablewriter.NewWriter(w)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetBorder(false)
		table.SetNoWhiteSpace(true)
		table.SetTablePadding("    ")
		table.AppendBulk(rows())
		table.Render()
		fmt.Fprintln(w)
	}

	tableRender("Artifacts", func() (rows [][]string) {
		rows = append(rows, []string{"", "weights", a.Paths.Weights})
		rows = append(rows, []string{"", "vocab", a.Paths.Vocab})
		rows = append(rows, []string{"", "metadata", a.Paths.Metadata})
		rows = append(rows, []string{"", "format", a.Format})
		rows = append(rows, []string{"", "tensors", strconv.Itoa(a.NumTensors)})
		rows = append(rows, []string{"", "size", humanize.IBytes(uint64(a.WeightBytes))})
		return
	})

	tableRender("Config", func() (rows [][]string) {
		cfg := a.Config
		rows = append(rows, []string{"", "image size", fmt.Sprintf("%dx%d", cfg.ImageSize[0], cfg.ImageSize[1])})
		rows = append(rows, []string{"", "seq length", strconv.Itoa(cfg.SeqLength)})
		rows = append(rows, []string{"", "vocab size", strconv.Itoa(cfg.VocabSize)})
		rows = append(rows, []string{"", "embed dim", strconv.Itoa(cfg.EmbedDim)})
		rows = append(rows, []string{"", "ff dim", strconv.Itoa(cfg.FFDim)})
		rows = append(rows, []string{"", "heads", fmt.Sprintf("%d encoder, %d decoder", cfg.EncoderNumHeads, cfg.DecoderNumHeads)})
		return
	})

	tableRender("Vocabulary", func() (rows [][]string) {
		vocab := a.Vectorizer.Vocabulary()
		head := vocab[:min(vocabHead, len(vocab))]
		quoted := make([]string, len(head))
		for i, tok := range head {
			quoted[i] = strconv.Quote(tok)
		}

		rows = append(rows, []string{"", "size", strconv.Itoa(len(vocab))})
		rows = append(rows, []string{"", "head", strings.Join(quoted, " ")})
		rows = append(rows, []string{"", "<start>", strconv.Itoa(int(a.StartID))})
		rows = append(rows, []string{"", "<end>", strconv.Itoa(int(a.EndID))})
		return
	})

	tableRender("SHA256", func() (rows [][]string) {
		rows = append(rows, []string{"", "weights", a.SHA256.Weights})
		rows = append(rows, []string{"", "vocab", a.SHA256.Vocab})
		rows = append(rows, []string{"", "metadata", a.SHA256.Metadata})
		return
	})

	return nil
}

// newInspectCmd - Erstellt den inspect Command
func newInspectCmd() *cobra.Command {
	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Load the caption artifacts and show a summary",
		Args:  cobra.ExactArgs(0),
		RunE:  InspectHandler,
	}

	inspectCmd.Flags().String("dir", "", "Artifacts directory (default from the environment)")
	inspectCmd.Flags().StringSlice("dump", nil, "Print the values of the named weight tensors")
	return inspectCmd
}
