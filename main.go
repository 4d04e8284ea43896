package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/xyproto/env/v2"
)

// main.go is the CLI driver (spec.md §6): `tcc [-o OUT] [-c] [-v] [-h] INPUT.c`.
// Flag handling and the log.Fatalf-on-driver-error convention follow the
// teacher's main.go; everything that is a compiler error rather than a
// driver error goes through Compiler.errorf/warningf instead (spec.md §7).

const versionString = "tcc-go 0.1.0"

// VerboseMode gates the `if VerboseMode { … }` trace calls threaded through
// section.go, encoder_amd64.go, and pe.go, exactly the idiom the teacher's
// main.go/emit.go use for every phase boundary.
var VerboseMode bool

func usage() {
	fmt.Fprintf(os.Stderr, "usage: tcc [-o OUT] [-c] [-v] [-h] INPUT.c\n")
	flag.PrintDefaults()
}

func main() {
	var (
		outputFlag  = flag.String("o", "", "output file path")
		compileOnly = flag.Bool("c", false, "compile only: write a raw .text dump, no PE wrapper")
		verbose     = flag.Bool("v", false, "print version and exit")
		help        = flag.Bool("h", false, "print usage and exit")
	)
	flag.Usage = usage
	flag.Parse()

	if *help {
		usage()
		os.Exit(0)
	}
	if *verbose {
		fmt.Println(versionString)
		os.Exit(0)
	}

	VerboseMode = env.Bool("TCC_VERBOSE")

	args := flag.Args()
	if len(args) != 1 {
		usage()
		os.Exit(1)
	}
	inputPath := args[0]

	outputPath := *outputFlag
	if outputPath == "" {
		outputPath = defaultOutputPath(inputPath, *compileOnly)
	}

	c := newCompiler()
	c.outputName = outputPath
	if *compileOnly {
		c.outputType = OutputObj
	} else {
		c.outputType = OutputExe
	}

	if VerboseMode {
		fmt.Fprintf(os.Stderr, "tcc: compiling %s -> %s\n", inputPath, outputPath)
	}

	ok := c.tccCompile(inputPath)
	if !ok {
		fmt.Fprintf(os.Stderr, "tcc: %d error(s), %d warning(s)\n", c.errCount, c.warnCount)
		os.Exit(1)
	}
	if c.warnCount > 0 && VerboseMode {
		fmt.Fprintf(os.Stderr, "tcc: %d warning(s)\n", c.warnCount)
	}

	if err := c.outputFile(); err != nil {
		log.Fatalf("tcc: cannot write output file: %v", err)
	}

	os.Exit(0)
}

// defaultOutputPath replaces the trailing extension of the input with .exe,
// or .obj under -c (spec.md §6). A `-c` compile with no `-o` is written
// under TCC_TMPDIR rather than beside the source, the one place this
// driver consults that override (§2 of SPEC_FULL.md).
func defaultOutputPath(inputPath string, compileOnly bool) string {
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	if compileOnly {
		dir := env.Str("TCC_TMPDIR", filepath.Dir(inputPath))
		return filepath.Join(dir, base+".obj")
	}
	return filepath.Join(filepath.Dir(inputPath), base+".exe")
}

// outputFile dispatches to the raw .text dump (-c) or the full PE32+ image,
// matching spec.md §6's two CLI output modes and SPEC_FULL.md §5.1's
// `-c` specification. It is tcc_output_file from spec.md §7, called only
// once tccCompile has reported zero errors.
func (c *Compiler) outputFile() error {
	if VerboseMode {
		fmt.Fprintf(os.Stderr, "tcc: writing %s\n", c.outputName)
	}
	if c.outputType == OutputObj {
		return os.WriteFile(c.outputName, c.text.Data, 0644)
	}
	return c.writePE(c.outputName)
}
