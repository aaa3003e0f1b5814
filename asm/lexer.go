package asm

import (
	"errors"
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokenWord tokenKind = iota
	tokenString
)

type token struct {
	kind tokenKind
	text string
}

// statement is one instruction, directive or label.
type statement struct {
	line     int
	label    string
	mnemonic string
	args     []token
}

var errUnterminated = errors.New("unterminated string literal")

const wordBreaks = " \t\r;#\"`"

// scanLine splits one source line into statements. Comments start with '#'
// and statements are separated by ';'. A leading "name:" becomes a separate
// label statement.
func scanLine(number int, text string) ([]statement, error) {
	var groups [][]token
	var current []token
	for i := 0; i < len(text); {
		c := text[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == '#':
			i = len(text)
		case c == ';':
			groups = append(groups, current)
			current = nil
			i++
		case c == '"' || c == '`':
			quoted, err := strconv.QuotedPrefix(text[i:])
			if err != nil {
				return nil, errUnterminated
			}
			s, err := strconv.Unquote(quoted)
			if err != nil {
				return nil, err
			}
			current = append(current, token{kind: tokenString, text: s})
			i += len(quoted)
		default:
			j := i
			for j < len(text) && !strings.ContainsRune(wordBreaks, rune(text[j])) {
				j++
			}
			current = append(current, token{kind: tokenWord, text: text[i:j]})
			i = j
		}
	}
	groups = append(groups, current)

	var stmts []statement
	for _, tokens := range groups {
		if len(tokens) == 0 {
			continue
		}
		first := tokens[0]
		if first.kind == tokenWord && len(first.text) > 1 && strings.HasSuffix(first.text, ":") {
			stmts = append(stmts, statement{line: number, label: strings.TrimSuffix(first.text, ":")})
			tokens = tokens[1:]
			if len(tokens) == 0 {
				continue
			}
		}
		stmts = append(stmts, statement{
			line:     number,
			mnemonic: tokens[0].text,
			args:     tokens[1:],
		})
	}
	return stmts, nil
}
