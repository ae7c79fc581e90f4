//go:build cgo

// MODUL: onnx_cgo
// ZWECK: ONNX Runtime Backend fuer das exportierte YOLOv8-Modell
// INPUT: Pfad der .onnx-Datei, NCHW-Eingabetensor
// OUTPUT: Rohausgabe [1, 4+nc, A] samt Shape
// NEBENEFFEKTE: Initialisiert die ONNX Runtime einmalig, alloziert Sessions
// ABHAENGIGKEITEN: github.com/yalue/onnxruntime_go
// HINWEISE: Die Session ist fuer parallele Run-Aufrufe sicher. Close MUSS
//           aufgerufen werden.

package detect

import (
	"context"
	"fmt"
	"slices"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/MichaelCStrahl/vision-voice-project/envconfig"
)

var (
	runtimeInitOnce sync.Once
	runtimeInitErr  error
)

func initRuntime() error {
	runtimeInitOnce.Do(func() {
		if lib := envconfig.OnnxRuntimeLib(); lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		runtimeInitErr = ort.InitializeEnvironment()
	})
	return runtimeInitErr
}

type onnxBackend struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	inputSize  int
}

func openONNX(path string) (Backend, error) {
	if err := initRuntime(); err != nil {
		return nil, fmt.Errorf("onnx runtime init: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("onnx model info: %w", err)
	}
	if len(inputs) != 1 || len(outputs) == 0 {
		return nil, fmt.Errorf("onnx: expected one input and at least one output, got %d/%d", len(inputs), len(outputs))
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer opts.Destroy()

	b := &onnxBackend{
		inputName:  inputs[0].Name,
		outputName: outputs[0].Name,
	}

	// [N, C, H, W], dynamische Achsen sind <= 0
	if dims := inputs[0].Dimensions; len(dims) == 4 && dims[2] > 0 && dims[2] == dims[3] {
		b.inputSize = int(dims[2])
	}

	b.session, err = ort.NewDynamicAdvancedSession(path, []string{b.inputName}, []string{b.outputName}, opts)
	if err != nil {
		return nil, fmt.Errorf("session erstellen: %w", err)
	}

	return b, nil
}

func (b *onnxBackend) InputSize() int {
	return b.inputSize
}

func (b *onnxBackend) Run(ctx context.Context, input []float32, size int) ([]float32, []int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	in, err := ort.NewTensor(ort.NewShape(1, 3, int64(size), int64(size)), input)
	if err != nil {
		return nil, nil, fmt.Errorf("input tensor: %w", err)
	}
	defer in.Destroy()

	// nil: die Session alloziert die Ausgabe
	outputs := []ort.Value{nil}
	if err := b.session.Run([]ort.Value{in}, outputs); err != nil {
		return nil, nil, fmt.Errorf("inference: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, nil, fmt.Errorf("onnx: output %s is not float32", b.outputName)
	}

	return slices.Clone(out.GetData()), slices.Clone([]int64(out.GetShape())), nil
}

func (b *onnxBackend) Close() error {
	if b.session == nil {
		return nil
	}
	err := b.session.Destroy()
	b.session = nil
	return err
}
