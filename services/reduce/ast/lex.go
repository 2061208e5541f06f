// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

// ScanTo returns the offset of the first occurrence of target at or after
// from that is a real token: occurrences inside comments, string literals
// and character literals are skipped. Returns -1 if end-of-file is reached.
//
// This is the lexical lookahead used when a node's reported extent stops
// short of its statement terminator.
func ScanTo(content []byte, from int, target byte) int {
	if from < 0 {
		from = 0
	}
	n := len(content)
	for i := from; i < n; i++ {
		switch c := content[i]; {
		case c == target:
			return i
		case c == '/' && i+1 < n && content[i+1] == '/':
			for i < n && content[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < n && content[i+1] == '*':
			i += 2
			for i+1 < n && !(content[i] == '*' && content[i+1] == '/') {
				i++
			}
			i++
			if i >= n {
				return -1
			}
		case c == '"' || c == '\'':
			i++
			for i < n && content[i] != c {
				if content[i] == '\\' {
					i++
				}
				i++
			}
		}
	}
	return -1
}
