// tamvm loads and runs a TAM image.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tamlang/tamvm/tam"
	"github.com/tamlang/tamvm/tam/codec"
	"github.com/tamlang/tamvm/tam/interp"
)

func main() {
	maxCycles := flag.Int("cycles", 0, "cycle budget (0 = unlimited)")
	report := flag.Bool("profile", false, "print a counters report after the run")
	compact := flag.Bool("compact", false, "omit zero-valued rows from the counters report")
	cbor := flag.Bool("cbor", false, "load the image as CBOR instead of the binary wire format")
	symbols := flag.String("symbols", "", "path to a .tamsym debug-symbol sidecar (default: <image>.tamsym if present)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tamvm [options] <image.tam>\n\n")
		fmt.Fprintf(os.Stderr, "Runs a TAM image to completion or until its cycle budget is exhausted.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	imagePath := flag.Arg(0)

	img, err := loadImage(imagePath, *cbor)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tamvm: %v\n", err)
		os.Exit(1)
	}

	symPath := *symbols
	if symPath == "" {
		candidate := strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + ".tamsym"
		if _, err := os.Stat(candidate); err == nil {
			symPath = candidate
		}
	}
	if symPath != "" {
		f, err := os.Open(symPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "tamvm: %v\n", err)
			os.Exit(1)
		}
		err = img.LoadSymbols(f)
		f.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "tamvm: loading symbols from %s: %v\n", symPath, err)
			os.Exit(1)
		}
	}

	it := interp.NewInterpreter(img, os.Stdin, os.Stdout)
	it.Run(*maxCycles)

	if *report {
		fmt.Fprint(os.Stderr, it.State.Stats.Report(*compact))
	}

	switch it.State.ExecutionState {
	case interp.Halted:
		os.Exit(0)
	case interp.Error:
		fmt.Fprintf(os.Stderr, "tamvm: %s at %d: %s\n", it.State.ErrorCode, it.State.ErrorLocation, it.State.ErrorMessage)
		os.Exit(1)
	default:
		fmt.Fprintf(os.Stderr, "tamvm: cycle budget exhausted after %d cycles\n", it.Cycles)
		os.Exit(1)
	}
}

func loadImage(path string, useCBOR bool) (*tam.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if useCBOR {
		return codec.UnmarshalImage(data)
	}
	return tam.Load(bytes.NewReader(data))
}
