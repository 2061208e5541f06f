// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ast is the C/C++ front end of the reducer.
//
// It wraps tree-sitter's C and C++ grammars and exposes the concrete syntax
// tree together with small helpers for walking it and resolving declarator
// names. Parsing is error-tolerant: a translation unit with syntax errors
// still yields a tree, flagged through Tree.HasErrors.
package ast

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"go.opentelemetry.io/otel/attribute"
)

// File size constants for input validation.
const (
	// DefaultMaxFileSize is the maximum file size the parser will accept (64MB).
	// Preprocessed C++ translation units are routinely tens of megabytes.
	DefaultMaxFileSize = 64 * 1024 * 1024

	// WarnFileSize is the threshold at which a warning is logged (8MB).
	WarnFileSize = 8 * 1024 * 1024
)

// Language identifies the grammar used for a translation unit.
type Language string

const (
	// LanguageC selects the tree-sitter C grammar.
	LanguageC Language = "c"

	// LanguageCPP selects the tree-sitter C++ grammar.
	LanguageCPP Language = "cpp"
)

var extensionLanguages = map[string]Language{
	".c":   LanguageC,
	".h":   LanguageC,
	".i":   LanguageC,
	".cc":  LanguageCPP,
	".cp":  LanguageCPP,
	".cpp": LanguageCPP,
	".cxx": LanguageCPP,
	".c++": LanguageCPP,
	".hh":  LanguageCPP,
	".hpp": LanguageCPP,
	".hxx": LanguageCPP,
	".ii":  LanguageCPP,
}

// LanguageForPath selects the grammar by file extension.
//
// Outputs:
//   - Language: The grammar to use.
//   - error: ErrUnsupportedLanguage for unknown extensions.
func LanguageForPath(path string) (Language, error) {
	ext := strings.ToLower(filepath.Ext(path))
	lang, ok := extensionLanguages[ext]
	if !ok {
		return "", fmt.Errorf("%w: extension %q", ErrUnsupportedLanguage, ext)
	}
	return lang, nil
}

func (l Language) grammar() *sitter.Language {
	if l == LanguageCPP {
		return cpp.GetLanguage()
	}
	return c.GetLanguage()
}

// Option configures a Parser instance.
type Option func(*Parser)

// WithMaxFileSize sets the maximum file size the parser will accept.
// Non-positive values are ignored.
func WithMaxFileSize(bytes int64) Option {
	return func(p *Parser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// WithLogger sets the logger used for parse warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Parser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Parser parses C and C++ translation units.
//
// Thread Safety:
//
//	Parser instances are safe for concurrent use. Each Parse call creates
//	its own tree-sitter parser internally.
type Parser struct {
	maxFileSize int64
	logger      *slog.Logger
}

// NewParser creates a Parser with the given options.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		maxFileSize: DefaultMaxFileSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse parses content, selecting the grammar from filePath's extension.
func (p *Parser) Parse(ctx context.Context, content []byte, filePath string) (*Tree, error) {
	lang, err := LanguageForPath(filePath)
	if err != nil {
		return nil, WrapParseError(err, filePath)
	}
	return p.ParseLanguage(ctx, content, filePath, lang)
}

// ParseLanguage parses content with an explicit grammar.
//
// Description:
//
//	Runs tree-sitter over content and returns the resulting tree. Syntax
//	errors do not fail the parse; they are visible through Tree.HasErrors
//	and as ERROR nodes in the tree.
//
// Inputs:
//   - ctx: Context for cancellation. Checked before and after parsing.
//   - content: Raw source bytes in any encoding. Offsets are byte offsets.
//   - filePath: Path used for error reporting.
//   - lang: Grammar to use.
//
// Outputs:
//   - *Tree: The parsed tree. The caller must call Close when done.
//   - error: ErrFileTooLarge, ErrInvalidContent, ErrParseFailed, or a
//     context error, wrapped in a *ParseError.
func (p *Parser) ParseLanguage(ctx context.Context, content []byte, filePath string, lang Language) (*Tree, error) {
	ctx, span := startParseSpan(ctx, string(lang), filePath, len(content))
	defer span.End()

	start := time.Now()
	fail := func(err error) (*Tree, error) {
		recordParseMetrics(ctx, string(lang), time.Since(start), false)
		span.RecordError(err)
		return nil, WrapParseError(err, filePath)
	}

	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("parse canceled before start: %w", err))
	}
	if content == nil {
		return fail(fmt.Errorf("%w: nil content", ErrInvalidContent))
	}
	if int64(len(content)) > p.maxFileSize {
		return fail(fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), p.maxFileSize))
	}
	if len(content) > WarnFileSize {
		p.logger.Warn("parsing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang.grammar())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrParseFailed, err))
	}
	root := tree.RootNode()
	if root == nil {
		tree.Close()
		return fail(fmt.Errorf("%w: nil root node", ErrParseFailed))
	}

	t := &Tree{
		Path:     filePath,
		Language: lang,
		Content:  content,
		tree:     tree,
		root:     root,
	}

	if t.HasErrors() {
		p.logger.Debug("translation unit contains syntax errors",
			slog.String("file", filePath))
	}

	span.SetAttributes(attribute.Bool("ast.has_errors", t.HasErrors()))
	recordParseMetrics(ctx, string(lang), time.Since(start), true)
	return t, nil
}

// Tree is a parsed translation unit.
type Tree struct {
	// Path is the file the tree was parsed from.
	Path string

	// Language is the grammar that produced the tree.
	Language Language

	// Content is the exact text that was parsed. Node byte offsets index it.
	Content []byte

	tree *sitter.Tree
	root *sitter.Node
}

// Root returns the translation_unit node.
func (t *Tree) Root() *sitter.Node {
	return t.root
}

// HasErrors reports whether the tree contains ERROR or MISSING nodes.
func (t *Tree) HasErrors() bool {
	return t.root.HasError()
}

// Text returns the source text of n.
func (t *Tree) Text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(t.Content)
}

// Close releases the tree-sitter tree.
func (t *Tree) Close() {
	if t.tree != nil {
		t.tree.Close()
		t.tree = nil
	}
}
