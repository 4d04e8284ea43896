package main

// OutputType selects what tcc_output_file produces.
type OutputType int

const (
	OutputExe OutputType = iota
	OutputObj
)

// loopCtx threads break/continue to their enclosing loop's labels. This is
// the fix for the REDESIGN FLAG spec.md documents as a known gap (§9):
// break/continue previously emitted no jump at all.
type loopCtx struct {
	breakLabel *Sym
	contLabel  *Sym
}

// Compiler is the single compiler-state singleton (spec.md §3, "Compiler
// state"): current file, current token, the four symbol stacks and local
// scope depth, the value stack, the section list, the current code offset,
// the frame-offset cursor, the function return type, output filename/type,
// and the error/warning counters.
type Compiler struct {
	lex      *Lexer
	tok      Token
	pending  *Token // one-slot pushback for the parser's cast/type-name lookahead
	fileName string

	defines *SymStack
	globals *SymStack
	locals  *SymStack
	labels  *SymStack

	vs ValueStack

	text  *Section
	data  *Section
	rdata *Section
	bss   *Section

	loc int64 // current frame-offset cursor (grows negative from 0)

	funcRetType Type
	curFunc     *Sym
	loopStack   []loopCtx

	outputName string
	outputType OutputType

	errCount   int
	warnCount  int
	anonLabels int

	dataFixups []dataFixup
}

// dataFixup records a pending RIP-relative displacement in .text that
// references an offset within another section (.rdata for string literals,
// or .text itself for a function address taken as a value) — used because
// a symbol's final virtual address is only known once the PE writer lays
// out every section (spec.md §4.6's `{ptr, CONST|SYM, offset}` value needs
// exactly this deferred resolution; it is the data-section counterpart of
// the jump fix-up chains codegen.go threads for labels).
type dataFixup struct {
	textOffset int      // offset of the 4-byte disp32 slot within .text
	targetSec  *Section // section the symbol's offset is relative to
	targetOff  int64    // target offset within targetSec
}

func (c *Compiler) recordDataFixup(textOffset int, targetSec *Section, targetOff int64) {
	c.dataFixups = append(c.dataFixups, dataFixup{textOffset: textOffset, targetSec: targetSec, targetOff: targetOff})
}

// resolveDataFixups patches every recorded RIP-relative slot. Called by the
// PE writer once every section's Addr (virtual address) is final.
func (c *Compiler) resolveDataFixups() {
	for _, f := range c.dataFixups {
		target := f.targetSec.Addr + uint64(f.targetOff)
		site := c.text.Addr + uint64(f.textOffset+4)
		disp := int32(int64(target) - int64(site))
		c.text.putU32At(f.textOffset, uint32(disp))
	}
}

func newCompiler() *Compiler {
	c := &Compiler{
		defines: newSymStack(),
		globals: newSymStack(),
		locals:  newSymStack(),
		labels:  newSymStack(),
		text:    newSection(".text", secCode),
		data:    newSection(".data", secData),
	}
	return c
}

// ind is the current write offset in .text — the code generator's "current
// code offset" (spec.md §3).
func (c *Compiler) ind() int { return c.text.size() }

// ensureRdata lazily creates .rdata on first string literal (spec.md §4.3).
func (c *Compiler) ensureRdata() *Section {
	if c.rdata == nil {
		c.rdata = newSection(".rdata", secRData)
	}
	return c.rdata
}

// pushLocalScope/popLocalScope bracket a block statement's symbols.
func (c *Compiler) pushLocalScope() int { return c.locals.marker() }
func (c *Compiler) popLocalScope(marker int) { c.locals.pop(marker) }

// findSym looks up name in locals then globals, per spec.md §4.2.
func (c *Compiler) findSym(name string) *Sym {
	if sym := c.locals.find(name); sym != nil {
		return sym
	}
	return c.globals.find(name)
}

func (c *Compiler) findGlobal(name string) *Sym {
	return c.globals.find(name)
}

// tcc_compile parses and generates code for one translation unit, returning
// whether the unit compiled cleanly (spec.md §7). It is the process-facing
// entry point `tcc_compile` names in spec.md §7.
func (c *Compiler) tccCompile(filename string) bool {
	c.fileName = filename
	lex, err := newLexer(c, filename)
	if err != nil {
		c.errCount++
		printDiag("%s: error: %v\n", filename, err)
		return false
	}
	c.lex = lex
	defer c.lex.close()

	c.next()
	p := &Parser{c: c}
	p.parseTranslationUnit()

	if c.errCount == 0 {
		c.checkUndefinedLabels()
	}
	return c.errCount == 0
}

// checkUndefinedLabels is the peephole sanity check SPEC_FULL.md §5.1 adds:
// a label referenced by a jump but never defined is reported as a warning
// (the fix-up chain would otherwise patch displacements that never resolve
// to a real target — in this single-translation-unit compiler that always
// indicates a gap in the generated control flow, such as a jump threaded
// onto a label that glabel never placed).
func (c *Compiler) checkUndefinedLabels() {
	for _, sym := range c.labels.spine {
		if sym.R != symLabelDefined {
			c.warningf("label %q used but never defined", sym.Name)
		}
	}
}

// next advances the current token, matching spec.md §4.1's `next()`. A
// pushed-back token (from the parser's one-token cast/type-name lookahead)
// is consumed first, so the lexer's own stream position is never disturbed.
func (c *Compiler) next() {
	if c.pending != nil {
		c.tok = *c.pending
		c.pending = nil
		return
	}
	c.tok = c.lex.next()
}

// pushback buffers t to be returned by the next call to next(), implementing
// a single token of lookahead for the parser's `( type-name )` vs.
// `( expression )` disambiguation.
func (c *Compiler) pushback(t Token) {
	cp := t
	c.pending = &cp
}
