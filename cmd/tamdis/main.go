// tamdis renders a TAM image's disassembly to stdout.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"

	"github.com/tamlang/tamvm/tam"
	"github.com/tamlang/tamvm/tam/codec"
)

func main() {
	explicitPrimitives := flag.Bool("explicit-primitives", false, "show CALL PB,_,d by raw displacement instead of the primitive's name")
	useCBOR := flag.Bool("cbor", false, "load the image as CBOR instead of the binary wire format")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tamdis [options] <image.tam>\n\n")
		fmt.Fprintf(os.Stderr, "Prints an Image's disassembly to stdout.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	path := flag.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tamdis: %v\n", err)
		os.Exit(1)
	}

	var img *tam.Image
	if *useCBOR {
		img, err = codec.UnmarshalImage(data)
	} else {
		img, err = tam.Load(bytes.NewReader(data))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "tamdis: %v\n", err)
		os.Exit(1)
	}

	for _, line := range img.Disassembly(*explicitPrimitives) {
		switch line.Kind {
		case tam.LineComment:
			if line.Text != "" {
				fmt.Printf("; %s\n", line.Text)
			} else {
				fmt.Println()
			}
		case tam.LineLabel:
			fmt.Printf("%s:\n", line.Text)
		case tam.LineInstruction:
			fmt.Printf("%6d  %s\n", line.Address, line.Text)
		}
	}
}
