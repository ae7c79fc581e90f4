// cmd_serve.go - Server, Version und Heartbeat
// Hauptfunktionen: RunServer, versionHandler, newerVersion, checkServerHeartbeat
package cmd

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/mod/semver"

	"github.com/MichaelCStrahl/vision-voice-project/api"
	"github.com/MichaelCStrahl/vision-voice-project/envconfig"
	"github.com/MichaelCStrahl/vision-voice-project/server"
	"github.com/MichaelCStrahl/vision-voice-project/version"
)

// RunServer - Startet den HTTP-Server
func RunServer(_ *cobra.Command, _ []string) error {
	ln, err := net.Listen("tcp", envconfig.Host().Host)
	if err != nil {
		return err
	}

	err = server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

// checkServerHeartbeat - Prueft ob der Server erreichbar ist
func checkServerHeartbeat(cmd *cobra.Command, _ []string) error {
	if local, _ := cmd.Flags().GetBool("local"); local {
		return nil
	}

	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}
	if err := client.Heartbeat(cmd.Context()); err != nil {
		return fmt.Errorf("caption server not responding at %s - %w", envconfig.Host(), err)
	}
	return nil
}

// versionHandler - Zeigt die Version an
func versionHandler(cmd *cobra.Command, _ []string) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return
	}

	out := cmd.OutOrStdout()
	serverVersion, err := client.Version(cmd.Context())
	if err != nil {
		fmt.Fprintln(out, "Warning: could not connect to a running caption server")
	}

	if serverVersion != "" {
		fmt.Fprintf(out, "server version is %s\n", serverVersion)
	}

	if serverVersion != version.Version {
		fmt.Fprintf(out, "client version is %s\n", version.Version)
		if newerVersion(serverVersion, version.Version) {
			fmt.Fprintln(out, "Warning: client is older than the server, please update")
		}
	}
}

// newerVersion meldet, ob a und b gueltige Versionen sind und a neuer ist
func newerVersion(a, b string) bool {
	// golang.org/x/mod/semver requires "v" prefix
	a, b = "v"+strings.TrimPrefix(a, "v"), "v"+strings.TrimPrefix(b, "v")
	return semver.IsValid(a) && semver.IsValid(b) && semver.Compare(a, b) > 0
}

// newServeCmd - Erstellt den serve Command
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the caption and detection server",
		Args:    cobra.ExactArgs(0),
		RunE:    RunServer,
	}
}

// newVersionCmd - Erstellt den version Command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show client and server version",
		Args:  cobra.ExactArgs(0),
		Run:   versionHandler,
	}
}
