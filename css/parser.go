// Package css scans Bloom stylesheets for font usage and renders font
// declarations for embedded fonts.
package css

import (
	"bytes"
	"strings"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"go.uber.org/zap"
)

// Parser scans CSS stylesheets.
type Parser struct {
	log *zap.Logger
}

// NewParser creates a new CSS parser.
func NewParser(log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{log: log.Named("css-parser")}
}

// generic families are resolved by reader itself and never name a font file
var genericFamilies = map[string]bool{
	"serif":      true,
	"sans-serif": true,
	"monospace":  true,
	"cursive":    true,
	"fantasy":    true,
	"system-ui":  true,
	"math":       true,
	"emoji":      true,
	"fangsong":   true,
	"inherit":    true,
	"initial":    true,
	"unset":      true,
	"revert":     true,
}

// FontFamilies returns families named by font-family declarations in the
// stylesheet in order of first appearance. Only the first face of a comma
// separated list is taken: the rest are fallbacks we do not want to embed.
// The optional source parameter identifies what's being parsed (for debug
// logging).
func (p *Parser) FontFamilies(data []byte, source ...string) []string {
	if len(source) > 0 && source[0] != "" {
		p.log.Debug("Scanning CSS for fonts", zap.String("source", source[0]), zap.Int("bytes", len(data)))
	}

	var (
		families []string
		seen     = make(map[string]bool)
	)

	parser := css.NewParser(parse.NewInput(bytes.NewReader(data)), false)
	for {
		gt, _, data := parser.Next()
		switch gt {
		case css.ErrorGrammar:
			if err := parser.Err(); err != nil && err.Error() != "EOF" {
				p.log.Debug("CSS parse error", zap.Error(err))
			}
			return families
		case css.DeclarationGrammar:
			if !strings.EqualFold(string(data), "font-family") {
				continue
			}
			name := firstFamily(parser.Values())
			if name == "" || genericFamilies[strings.ToLower(name)] || seen[name] {
				continue
			}
			seen[name] = true
			families = append(families, name)
		}
	}
}

// firstFamily assembles first entry of font-family value list. Unquoted
// names may span several identifiers separated by whitespace.
func firstFamily(tokens []css.Token) string {
	var parts []string
	for _, t := range tokens {
		switch t.TokenType {
		case css.WhitespaceToken:
			continue
		case css.StringToken:
			if len(parts) == 0 {
				return strings.TrimSpace(unquote(string(t.Data)))
			}
			return strings.Join(parts, " ")
		case css.IdentToken:
			parts = append(parts, string(t.Data))
		case css.CommaToken:
			return strings.Join(parts, " ")
		default:
			// !important and such end the value
			return strings.Join(parts, " ")
		}
	}
	return strings.Join(parts, " ")
}

// unquote removes surrounding quotes from a string.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return s
	}
	if (s[0] == '"' && s[len(s)-1] == '"') ||
		(s[0] == '\'' && s[len(s)-1] == '\'') {
		return s[1 : len(s)-1]
	}
	return s
}
