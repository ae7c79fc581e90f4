// cmd_detect.go - detect und categories Commands
// Hauptfunktionen: DetectHandler, detectOptions, renderObjects
package cmd

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/MichaelCStrahl/vision-voice-project/api"
)

// detectOptions uebernimmt nur explizit gesetzte Flags, alle anderen Werte
// kommen aus der config.json des Servers
func detectOptions(cmd *cobra.Command) api.DetectOptions {
	var opts api.DetectOptions
	flags := cmd.Flags()

	if flags.Changed("conf") {
		v, _ := flags.GetFloat64("conf")
		opts.Conf = &v
	}
	if flags.Changed("iou") {
		v, _ := flags.GetFloat64("iou")
		opts.IoU = &v
	}
	if flags.Changed("imgsz") {
		v, _ := flags.GetInt("imgsz")
		opts.ImgSz = &v
	}
	if flags.Changed("max-det") {
		v, _ := flags.GetInt("max-det")
		opts.MaxDet = &v
	}
	return opts
}

// DetectHandler - Erkennt Objekte in einer Bilddatei
func DetectHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	opts := detectOptions(cmd)

	var resp *api.DetectResponse
	if b64, _ := cmd.Flags().GetBool("base64"); b64 {
		req := &api.DetectBase64Request{ImageBase64: base64.StdEncoding.EncodeToString(data)}
		resp, err = client.DetectBase64(cmd.Context(), req, opts)
	} else {
		resp, err = client.Detect(cmd.Context(), args[0], data, opts)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, resp.Message)
	if len(resp.DetectedObjects) > 0 {
		renderObjects(out, resp.DetectedObjects)
	}
	return nil
}

func renderObjects(w io.Writer, objects []api.DetectedObject) {
	var data [][]string
	for _, o := range objects {
		bbox := "-"
		if len(o.BBox) == 4 {
			parts := make([]string, len(o.BBox))
			for i, v := range o.BBox {
				parts[i] = strconv.FormatFloat(v, 'f', 1, 64)
			}
			bbox = strings.Join(parts, ",")
		}
		data = append(data, []string{o.Class, strconv.Itoa(o.ClassID), strconv.FormatFloat(o.Confidence, 'f', 3, 64), bbox})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"CLASS", "ID", "CONFIDENCE", "BBOX"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}

// CategoriesHandler - Listet die Klassen des Detektors
func CategoriesHandler(cmd *cobra.Command, _ []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	resp, err := client.Categories(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for i, c := range resp.Categories {
		fmt.Fprintf(out, "%4d  %s\n", i, c)
	}
	return nil
}

// newDetectCmd - Erstellt den detect Command mit dem Unterbefehl categories
func newDetectCmd() *cobra.Command {
	detectCmd := &cobra.Command{
		Use:     "detect FILE",
		Short:   "Detect objects in an image",
		Args:    cobra.ExactArgs(1),
		PreRunE: checkServerHeartbeat,
		RunE:    DetectHandler,
	}

	detectCmd.Flags().Float64("conf", 0.25, "Confidence threshold")
	detectCmd.Flags().Float64("iou", 0.5, "IoU threshold for non-maximum suppression")
	detectCmd.Flags().Int("imgsz", 640, "Inference size (rounded up to a multiple of 32)")
	detectCmd.Flags().Int("max-det", 100, "Maximum number of detections")
	detectCmd.Flags().Bool("base64", false, "Send the image base64 encoded")

	detectCmd.AddCommand(&cobra.Command{
		Use:     "categories",
		Short:   "List the detector classes",
		Args:    cobra.ExactArgs(0),
		PreRunE: checkServerHeartbeat,
		RunE:    CategoriesHandler,
	})

	return detectCmd
}
