// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/containerd/console"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/MichaelCStrahl/vision-voice-project/envconfig"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-26s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cobra.EnableCommandSorting = false

	if runtime.GOOS == "windows" && term.IsTerminal(int(os.Stdout.Fd())) {
		console.ConsoleFromFile(os.Stdin) //nolint:errcheck
	}

	rootCmd := &cobra.Command{
		Use:           "vision-voice",
		Short:         "Image captioning and object detection",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				versionHandler(cmd, args)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	serveCmd := newServeCmd()
	captionCmd := newCaptionCmd()
	detectCmd := newDetectCmd()
	inspectCmd := newInspectCmd()
	versionCmd := newVersionCmd()

	// Environment-Dokumentation hinzufuegen
	envVars := envconfig.AsMap()
	artifacts := []envconfig.EnvVar{
		envVars["CAPTIONING_ARTIFACTS_DIR"],
		envVars["CAPTIONING_WEIGHTS_PATH"],
		envVars["CAPTIONING_VOCAB_PATH"],
		envVars["CAPTIONING_METADATA_PATH"],
	}

	for _, cmd := range []*cobra.Command{serveCmd, captionCmd, detectCmd, inspectCmd} {
		switch cmd {
		case serveCmd:
			appendEnvDocs(cmd, append([]envconfig.EnvVar{
				envVars["CAPTION_DEBUG"],
				envVars["CAPTION_HOST"],
				envVars["CAPTION_ORIGINS"],
				envVars["CAPTION_REQUEST_TIMEOUT"],
				envVars["CAPTION_NUM_PARALLEL"],
				envVars["CAPTION_MAX_UPLOAD"],
				envVars["CAPTION_CACHE_SIZE"],
				envVars["CAPTION_NOCACHE"],
				envVars["DETECTION_MODEL_DIR"],
				envVars["ONNXRUNTIME_LIB"],
			}, artifacts...))
		case captionCmd:
			appendEnvDocs(cmd, append([]envconfig.EnvVar{envVars["CAPTION_HOST"]}, artifacts...))
		case inspectCmd:
			appendEnvDocs(cmd, artifacts)
		default:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["CAPTION_HOST"]})
		}
	}

	rootCmd.AddCommand(
		serveCmd,
		captionCmd,
		detectCmd,
		inspectCmd,
		versionCmd,
	)

	return rootCmd
}
