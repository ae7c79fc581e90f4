// MODUL: tsgen
// ZWECK: Erzeugt TypeScript-Interfaces der HTTP-Antworten fuer den
//        React-Native-Client
// INPUT: -o Zieldatei (Standard: stdout)
// OUTPUT: TypeScript-Quelltext
// NEBENEFFEKTE: Schreibt die Zieldatei
// ABHAENGIGKEITEN: api, github.com/tkrajina/typescriptify-golang-structs
// HINWEISE: Aufruf ueber "go generate ./api". DetectResponse fehlt, weil
//           all_predictions beliebige JSON-Werte enthaelt.

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tkrajina/typescriptify-golang-structs/typescriptify"

	"github.com/MichaelCStrahl/vision-voice-project/api"
)

const header = "// Code generated by tsgen. DO NOT EDIT.\n\n"

// responses sind die Antworttypen, die der Client liest. Verschachtelte
// Structs werden mit erzeugt.
var responses = []any{
	api.CaptionResponse{},
	api.CaptionStreamResponse{},
	api.DetectedObject{},
	api.DetectConfig{},
	api.CategoriesResponse{},
	api.HealthResponse{},
	api.RootResponse{},
	api.VersionResponse{},
}

func convert() (string, error) {
	converter := typescriptify.New()
	converter.CreateInterface = true
	converter.BackupDir = ""
	for _, v := range responses {
		converter.Add(v)
	}

	ts, err := converter.Convert(nil)
	if err != nil {
		return "", err
	}
	return header + ts, nil
}

func main() {
	out := flag.String("o", "", "output file")
	flag.Parse()

	ts, err := convert()
	if err != nil {
		fmt.Fprintln(os.Stderr, "tsgen:", err)
		os.Exit(1)
	}

	if *out == "" {
		fmt.Print(ts)
		return
	}
	if err := os.WriteFile(*out, []byte(ts), 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "tsgen:", err)
		os.Exit(1)
	}
}
