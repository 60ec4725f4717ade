// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cli

import (
	"context"
	"strings"
	"unicode/utf8"
)

// completer asks the gateway for completions of the statement being typed.
// It implements readline.AutoCompleter.
type completer struct {
	ctx context.Context
	cmd *CLICommand
}

// Do returns the text each candidate adds after the cursor, and the length
// of the word the candidates complete.
func (c *completer) Do(line []rune, pos int) ([][]rune, int) {
	typed := string(line[:pos])
	text := c.cmd.partialCommand + typed
	candidates, err := c.cmd.Executor.CompleteStatement(c.ctx, c.cmd.SessionID, text, utf8.RuneCountInString(text))
	if err != nil {
		c.cmd.logger.Debugf("completing statement: %v", err)
		return nil, 0
	}

	word := currentWord(typed)
	out := make([][]rune, 0, len(candidates))
	for _, cand := range candidates {
		if s, ok := completionSuffix(cand, word); ok {
			out = append(out, []rune(s))
		}
	}
	return out, len([]rune(word))
}

// currentWord returns the identifier the cursor is in.
func currentWord(s string) string {
	i := len(s)
	for i > 0 && isWordChar(s[i-1]) {
		i--
	}
	return s[i:]
}

func isWordChar(b byte) bool {
	return b == '_' || b == '$' || b == '.' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// completionSuffix returns what follows word in candidate. A word without
// a dot may complete the last segment of a qualified name. Keywords
// follow the case the user types them in.
func completionSuffix(candidate, word string) (string, bool) {
	target := candidate
	if !strings.HasPrefix(strings.ToLower(target), strings.ToLower(word)) {
		i := strings.LastIndexByte(candidate, '.')
		if i < 0 || strings.Contains(word, ".") {
			return "", false
		}
		target = candidate[i+1:]
		if !strings.HasPrefix(strings.ToLower(target), strings.ToLower(word)) {
			return "", false
		}
	}
	suffix := target[len(word):]
	if word != "" && word == strings.ToLower(word) && target == strings.ToUpper(target) {
		suffix = strings.ToLower(suffix)
	}
	return suffix, true
}
