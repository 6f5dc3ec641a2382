package expr

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenIdent
	tokenNumber
	tokenString
	tokenLParen
	tokenRParen
	tokenLBracket
	tokenRBracket
	tokenComma
	tokenOperator // == != < <= > >= + - * /
	tokenAnd
	tokenOr
	tokenNot
	tokenIn
	tokenTrue
	tokenFalse
	tokenNil
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

var keywords = map[string]tokenKind{
	"and":   tokenAnd,
	"or":    tokenOr,
	"not":   tokenNot,
	"in":    tokenIn,
	"true":  tokenTrue,
	"false": tokenFalse,
	"nil":   tokenNil,
	"none":  tokenNil,
}

// tokenize splits a source expression into tokens. Identifiers may contain
// dots, so "record.partner.name" is a single path token.
func tokenize(src string) ([]token, error) {
	tokens := make([]token, 0)
	runes := []rune(src)
	i := 0

	for i < len(runes) {
		c := runes[i]

		switch {
		case unicode.IsSpace(c):
			i++

		case c == '(':
			tokens = append(tokens, token{tokenLParen, "(", i})
			i++
		case c == ')':
			tokens = append(tokens, token{tokenRParen, ")", i})
			i++
		case c == '[':
			tokens = append(tokens, token{tokenLBracket, "[", i})
			i++
		case c == ']':
			tokens = append(tokens, token{tokenRBracket, "]", i})
			i++
		case c == ',':
			tokens = append(tokens, token{tokenComma, ",", i})
			i++

		case c == '"' || c == '\'':
			quote := c
			j := i + 1
			var sb strings.Builder

			for j < len(runes) && runes[j] != quote {
				if runes[j] == '\\' && j+1 < len(runes) {
					j++
				}

				sb.WriteRune(runes[j])
				j++
			}

			if j >= len(runes) {
				return nil, fmt.Errorf("unterminated string at position %d", i)
			}

			tokens = append(tokens, token{tokenString, sb.String(), i})
			i = j + 1

		case unicode.IsDigit(c):
			j := i
			for j < len(runes) && (unicode.IsDigit(runes[j]) || runes[j] == '.') {
				j++
			}

			tokens = append(tokens, token{tokenNumber, string(runes[i:j]), i})
			i = j

		case unicode.IsLetter(c) || c == '_':
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_' || runes[j] == '.') {
				j++
			}

			word := string(runes[i:j])
			if kind, ok := keywords[strings.ToLower(word)]; ok && !strings.Contains(word, ".") {
				tokens = append(tokens, token{kind, word, i})
			} else {
				tokens = append(tokens, token{tokenIdent, word, i})
			}

			i = j

		case strings.ContainsRune("=!<>+-*/", c):
			if i+1 < len(runes) && runes[i+1] == '=' && (c == '=' || c == '!' || c == '<' || c == '>') {
				tokens = append(tokens, token{tokenOperator, string(c) + "=", i})
				i += 2
			} else if c == '=' {
				return nil, fmt.Errorf("single '=' at position %d, use '=='", i)
			} else {
				tokens = append(tokens, token{tokenOperator, string(c), i})
				i++
			}

		default:
			return nil, fmt.Errorf("unexpected character %q at position %d", c, i)
		}
	}

	tokens = append(tokens, token{tokenEOF, "", len(runes)})

	return tokens, nil
}
