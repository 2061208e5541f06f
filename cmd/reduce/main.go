// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command reduce shrinks a C or C++ file while an interestingness test
// keeps succeeding.
//
// Usage:
//
//	reduce run bug.c --oracle './crashes.sh'
//	reduce run bug.c --oracle 'gcc -c bug.c 2>&1 | grep -q "internal compiler error"'
//	reduce checkpoints list ./ckpt.db
//	reduce checkpoints show ./ckpt.db <run-id> 12
//	reduce config init
//
// Exit codes: 0 on success, 2 if the input is not interesting to begin
// with, 1 on any other failure.
package main

import (
	"context"
	"os"
)

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
