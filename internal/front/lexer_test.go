package front

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLexerTokenizesKeywordsAndOperators(t *testing.T) {
	toks, err := NewLexer([]byte("fn main() -> I64 { 1 + 2 * 3 <= 4 && !false }")).Tokenize()
	require.NoError(t, err)

	var kinds []TokenKind
	for _, tok := range toks {
		kinds = append(kinds, tok.Kind)
	}
	require.Equal(t, []TokenKind{
		TokFn, TokIdent, TokLParen, TokRParen, TokArrow, TokIdent, TokLBrace,
		TokInt, TokPlus, TokInt, TokStar, TokInt, TokLe, TokInt, TokAndAnd,
		TokBang, TokFalse, TokRBrace, TokEOF,
	}, kinds)
}

func TestLexerSkipsLineComments(t *testing.T) {
	toks, err := NewLexer([]byte("1 // a comment\n+ 2")).Tokenize()
	require.NoError(t, err)
	require.Equal(t, []TokenKind{TokInt, TokPlus, TokInt, TokEOF}, []TokenKind{toks[0].Kind, toks[1].Kind, toks[2].Kind, toks[3].Kind})
}

func TestLexerTracksLineAndColumn(t *testing.T) {
	toks, err := NewLexer([]byte("fn\n  main")).Tokenize()
	require.NoError(t, err)
	require.Equal(t, 1, toks[0].Line)
	require.Equal(t, 2, toks[1].Line)
	require.Equal(t, 3, toks[1].Col)
}

func TestLexerRejectsUnknownCharacter(t *testing.T) {
	_, err := NewLexer([]byte("let x = 1 @ 2;")).Tokenize()
	require.Error(t, err)
	var lexErr *LexError
	require.ErrorAs(t, err, &lexErr)
	require.Equal(t, byte('@'), lexErr.Ch)
}

func TestLexerDistinguishesSingleAndDoubleCharOperators(t *testing.T) {
	toks, err := NewLexer([]byte("- -> = == ! != < <= > >= & && | ||")).Tokenize()
	require.NoError(t, err)
	var kinds []TokenKind
	for _, tok := range toks {
		kinds = append(kinds, tok.Kind)
	}
	require.Equal(t, []TokenKind{
		TokMinus, TokArrow, TokAssign, TokEq, TokBang, TokNe, TokLt, TokLe,
		TokGt, TokGe, TokAmp, TokAndAnd, TokPipe, TokOrOr, TokEOF,
	}, kinds)
}
