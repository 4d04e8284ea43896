package main

// TokKind identifies the lexical class of a Token.
type TokKind int

const (
	TokEOF TokKind = iota
	TokNumber
	TokFloat
	TokString
	TokIdent
	TokKeyword
	TokPunct
)

// Keyword is the reserved-word identity of a TokKeyword token.
type Keyword int

const (
	KwNone Keyword = iota
	KwInt
	KwChar
	KwShort
	KwLong
	KwSigned
	KwUnsigned
	KwVoid
	KwFloat
	KwDouble
	KwConst
	KwVolatile
	KwStatic
	KwExtern
	KwTypedef
	KwInline
	KwStruct
	KwUnion
	KwEnum
	KwIf
	KwElse
	KwWhile
	KwFor
	KwDo
	KwReturn
	KwBreak
	KwContinue
	KwGoto
	KwSizeof
)

var keywords = map[string]Keyword{
	"int":      KwInt,
	"char":     KwChar,
	"short":    KwShort,
	"long":     KwLong,
	"signed":   KwSigned,
	"unsigned": KwUnsigned,
	"void":     KwVoid,
	"float":    KwFloat,
	"double":   KwDouble,
	"const":    KwConst,
	"volatile": KwVolatile,
	"static":   KwStatic,
	"extern":   KwExtern,
	"typedef":  KwTypedef,
	"inline":   KwInline,
	"struct":   KwStruct,
	"union":    KwUnion,
	"enum":     KwEnum,
	"if":       KwIf,
	"else":     KwElse,
	"while":    KwWhile,
	"for":      KwFor,
	"do":       KwDo,
	"return":   KwReturn,
	"break":    KwBreak,
	"continue": KwContinue,
	"goto":     KwGoto,
	"sizeof":   KwSizeof,
}

// Punct is the identity of a single- or multi-character operator/punctuator token.
type Punct int

const (
	PNone Punct = iota
	PPlus
	PMinus
	PStar
	PSlash
	PPercent
	PAmp
	PPipe
	PCaret
	PTilde
	PBang
	PLt
	PGt
	PAssign
	PLParen
	PRParen
	PLBrace
	PRBrace
	PLBracket
	PRBracket
	PSemi
	PComma
	PDot
	PQuestion
	PColon

	PEq
	PNe
	PLe
	PGe
	PShl
	PShr
	PIncr
	PDecr
	PArrow
	PAndAnd
	POrOr

	PAddAssign
	PSubAssign
	PMulAssign
	PDivAssign
	PModAssign
	PAndAssign
	POrAssign
	PXorAssign
	PShlAssign
	PShrAssign

	PEllipsis
)

// Token is a single lexical unit. Owned string payloads (Ident/Str) are
// transferred to their consumer (a symbol table entry, or the rodata
// section) and the token is not reused afterward.
type Token struct {
	Kind    TokKind
	Kw      Keyword
	Punct   Punct
	Ident   string
	Str     string
	IVal    int64
	FVal    float64
	Line    int
	Unsigned bool
}

func (t Token) String() string {
	switch t.Kind {
	case TokEOF:
		return "<eof>"
	case TokNumber:
		return "<number>"
	case TokFloat:
		return "<float>"
	case TokString:
		return "<string>"
	case TokIdent:
		return t.Ident
	case TokKeyword:
		return "<keyword>"
	default:
		return "<punct>"
	}
}
