package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/MichaelCStrahl/vision-voice-project/cmd"
)

func main() {
	cobra.CheckErr(cmd.NewCLI().ExecuteContext(context.Background()))
}
