package server

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/exomars/compiler"
	"github.com/chazu/exomars/vm"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "exomars-lsp"

// diagnostic is a compile failure reported by the machine's sink.
type diagnostic struct {
	message string
	line    int // 1-based, 0 if unknown
}

// LspServer bridges LSP editor features to a compile-only Machine via Worker.
type LspServer struct {
	worker *Worker
	diags  []diagnostic // written by the diagnostic sink, on the worker goroutine

	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server checking programs against conds (the
// built-in conditions when nil).
func NewLSP(conds *vm.Registry) *LspServer {
	if conds == nil {
		conds = vm.DefaultRegistry()
	}
	s := &LspServer{
		docs:    make(map[string]string),
		version: "0.1.0",
	}
	m := vm.New(nil, nil,
		vm.WithConditions(conds),
		vm.WithCompiler(compiler.Compile),
		vm.WithDiagnostics(func(message string, line int) {
			s.diags = append(s.diags, diagnostic{message: message, line: line})
		}),
	)
	s.worker = NewWorker(m)

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
		TextDocumentReferences: s.textDocumentReferences,
		TextDocumentFormatting: s.textDocumentFormatting,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run serves on stdio until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- Lifecycle ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	commonlog.NewInfoMessage(0, "ExoMars LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{" "},
	}

	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true
	capabilities.ReferencesProvider = true
	capabilities.DocumentFormattingProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.worker.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Open documents ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// Full sync: the newest change carries the whole document.
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *LspServer) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(text, params.Position)
	conditionsOnly := expectsCondition(text, params.Position)

	var items []protocol.CompletionItem
	err := s.worker.Do(context.Background(), func(m *vm.Machine) error {
		items = complete(m.Conditions(), prefix, conditionsOnly)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	word := strings.ToLower(extractWord(text, params.Position))
	if word == "" {
		return nil, nil
	}

	var hover *protocol.Hover
	err := s.worker.Do(context.Background(), func(m *vm.Machine) error {
		hover = describe(m.Conditions(), word)
		return nil
	})
	if err != nil {
		return nil, nil
	}
	return hover, nil
}

// textDocumentDefinition jumps from an `end` or `leave` to the `begin` of
// its loop.
func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}

	var locations []protocol.Location
	err := s.worker.Do(context.Background(), func(m *vm.Machine) error {
		p, err := s.compileQuiet(m, text)
		if err != nil {
			return nil
		}
		line := int(params.Position.Line) + 1
		for _, inst := range p.Instructions {
			if inst.Line != line || (inst.Op != vm.OpLoopEnd && inst.Op != vm.OpLoopLeave) {
				continue
			}
			locations = append(locations, lineLocation(uri, text, p.Instructions[inst.Begin].Line))
			break
		}
		return nil
	})
	if err != nil || len(locations) == 0 {
		return nil, nil
	}
	return locations, nil
}

// textDocumentReferences lists the `end` and `leave` actions of the loop
// opened on the cursor's line.
func (s *LspServer) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	uri := params.TextDocument.URI
	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}

	var locations []protocol.Location
	err := s.worker.Do(context.Background(), func(m *vm.Machine) error {
		p, err := s.compileQuiet(m, text)
		if err != nil {
			return nil
		}
		line := int(params.Position.Line) + 1
		begin := -1
		for _, inst := range p.Instructions {
			if inst.Line == line && inst.Op == vm.OpLoopBegin {
				begin = inst.Addr
				break
			}
		}
		if begin < 0 {
			return nil
		}
		for _, inst := range p.Instructions {
			if (inst.Op == vm.OpLoopEnd || inst.Op == vm.OpLoopLeave) && inst.Begin == begin {
				locations = append(locations, lineLocation(uri, text, inst.Line))
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil
	}
	return locations, nil
}

func (s *LspServer) textDocumentFormatting(ctx *glsp.Context, params *protocol.DocumentFormattingParams) ([]protocol.TextEdit, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	formatted := compiler.Format(text)
	if formatted == text {
		return []protocol.TextEdit{}, nil
	}
	return []protocol.TextEdit{{
		Range:   wholeDocument(text),
		NewText: formatted,
	}}, nil
}

// compileQuiet compiles text without keeping its diagnostics. Runs on the
// worker goroutine.
func (s *LspServer) compileQuiet(m *vm.Machine, text string) (*vm.Program, error) {
	defer func() { s.diags = s.diags[:0] }()
	if err := m.Compile(text); err != nil {
		return nil, err
	}
	return m.Program(), nil
}

// --- Registry-backed logic (called on worker goroutine) ---

func complete(conds *vm.Registry, prefix string, conditionsOnly bool) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	prefix = strings.ToLower(prefix)

	if !conditionsOnly {
		for _, kw := range compiler.Keywords {
			names := append([]string{kw.Name}, kw.Aliases...)
			for _, name := range names {
				if !strings.HasPrefix(name, prefix) {
					continue
				}
				kind := protocol.CompletionItemKindKeyword
				detail := kw.Syntax
				nameCopy := name
				items = append(items, protocol.CompletionItem{
					Label:         name,
					Kind:          &kind,
					Detail:        &detail,
					Documentation: kw.Doc,
					InsertText:    &nameCopy,
				})
			}
		}
	}

	names := conds.Names()
	if conditionsOnly && strings.HasPrefix("not", prefix) {
		names = append([]string{"not"}, names...)
	}
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		kind := protocol.CompletionItemKindValue
		detail := "condition"
		var doc any
		if c, ok := conds.Lookup(name); ok {
			if c.TakesOperand {
				detail = "condition " + name + " N"
			}
			doc = c.Doc
		}
		nameCopy := name
		items = append(items, protocol.CompletionItem{
			Label:         name,
			Kind:          &kind,
			Detail:        &detail,
			Documentation: doc,
			InsertText:    &nameCopy,
		})
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Label < items[j].Label })
	return items
}

func describe(conds *vm.Registry, word string) *protocol.Hover {
	var b strings.Builder
	if kw, ok := compiler.LookupKeyword(word); ok {
		fmt.Fprintf(&b, "**%s**\n\n`%s`\n\n%s", kw.Name, kw.Syntax, kw.Doc)
		if len(kw.Aliases) > 0 {
			fmt.Fprintf(&b, "\n\nAlso written: `%s`", strings.Join(kw.Aliases, "`, `"))
		}
	} else if c, ok := conds.Lookup(word); ok {
		syntax := c.Name
		if c.TakesOperand {
			syntax += " N"
		}
		fmt.Fprintf(&b, "**condition** `%s`\n\n%s", syntax, c.Doc)
	} else {
		return nil
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	diagnostics, err := s.check(text)
	if err != nil {
		return
	}
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// check compiles text and converts any failure into diagnostics.
func (s *LspServer) check(text string) ([]protocol.Diagnostic, error) {
	var found []diagnostic
	err := s.worker.Do(context.Background(), func(m *vm.Machine) error {
		s.diags = s.diags[:0]
		_ = m.Compile(text)
		found = append(found, s.diags...)
		s.diags = s.diags[:0]
		return nil
	})
	if err != nil {
		return nil, err
	}

	lines := strings.Split(text, "\n")
	diagnostics := []protocol.Diagnostic{}
	for _, d := range found {
		severity := protocol.DiagnosticSeverityError
		source := lspName
		line := d.line - 1
		if line < 0 || line >= len(lines) {
			line = 0
		}
		end := 0
		if line < len(lines) {
			end = len(strings.TrimRight(lines[line], "\r"))
		}
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range: protocol.Range{
				Start: protocol.Position{Line: protocol.UInteger(line), Character: 0},
				End:   protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(end)},
			},
			Severity: &severity,
			Source:   &source,
			Message:  d.message,
		})
	}
	return diagnostics, nil
}

// --- Cursor helpers ---

// extractPrefix returns the part of the word left of the cursor.
func extractPrefix(text string, pos protocol.Position) string {
	line, col, ok := lineAt(text, pos)
	if !ok {
		return ""
	}

	start := col
	for start > 0 && isWordChar(rune(line[start-1])) {
		start--
	}
	return line[start:col]
}

// extractWord returns the full word under the cursor.
func extractWord(text string, pos protocol.Position) string {
	line, col, ok := lineAt(text, pos)
	if !ok {
		return ""
	}

	start := col
	for start > 0 && isWordChar(rune(line[start-1])) {
		start--
	}
	end := col
	for end < len(line) && isWordChar(rune(line[end])) {
		end++
	}
	return line[start:end]
}

// expectsCondition reports whether the cursor follows `if`, `else if` or
// `not` in the current action, where only conditions are valid.
func expectsCondition(text string, pos protocol.Position) bool {
	line, col, ok := lineAt(text, pos)
	if !ok {
		return false
	}
	before := line[:col]
	if i := strings.LastIndexByte(before, ';'); i >= 0 {
		before = before[i+1:]
	}
	fields := strings.Fields(strings.ToLower(before))
	if len(fields) > 0 && !strings.HasSuffix(before, " ") && !strings.HasSuffix(before, "\t") {
		fields = fields[:len(fields)-1] // the word being typed
	}
	if len(fields) == 0 {
		return false
	}
	switch fields[len(fields)-1] {
	case "if", "not":
		return true
	}
	return false
}

func lineAt(text string, pos protocol.Position) (string, int, bool) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return "", 0, false
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}
	return line, col, true
}

func isWordChar(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}

func lineLocation(uri protocol.DocumentUri, text string, line int) protocol.Location {
	lines := strings.Split(text, "\n")
	end := 0
	if line >= 1 && line <= len(lines) {
		end = len(strings.TrimRight(lines[line-1], "\r"))
	}
	l := protocol.UInteger(line - 1)
	return protocol.Location{
		URI: uri,
		Range: protocol.Range{
			Start: protocol.Position{Line: l, Character: 0},
			End:   protocol.Position{Line: l, Character: protocol.UInteger(end)},
		},
	}
}

func wholeDocument(text string) protocol.Range {
	lines := strings.Split(text, "\n")
	last := len(lines) - 1
	return protocol.Range{
		Start: protocol.Position{Line: 0, Character: 0},
		End:   protocol.Position{Line: protocol.UInteger(last), Character: protocol.UInteger(len(lines[last]))},
	}
}

func boolPtr(b bool) *bool {
	return &b
}
