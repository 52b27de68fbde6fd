package lsp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/swiftlens/swiftlens-go/internal/swiftsrc"
)

// DefaultFactory returns a Factory that launches sourcekit-lsp as a
// subprocess per project root and speaks LSP over stdio.
func DefaultFactory() Factory {
	return &sourcekitFactory{}
}

type sourcekitFactory struct{}

func (f *sourcekitFactory) NewClient(ctx context.Context, projectRoot string, timeout time.Duration) (Client, error) {
	name, args := lspCommand()
	if name == "" {
		return nil, fmt.Errorf("%w: sourcekit-lsp not found on PATH", ErrConnection)
	}

	cmd := exec.Command(name, args...)
	cmd.Dir = projectRoot
	cmd.Stderr = nil // sourcekit-lsp is chatty; keep our stderr clean

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: starting sourcekit-lsp: %v", ErrConnection, err)
	}

	c := &SourceKitClient{
		cmd:     cmd,
		stdin:   stdin,
		timeout: timeout,
		root:    projectRoot,
		inbox:   make(chan jsonrpcMessage, 16),
		done:    make(chan struct{}),
	}
	go c.readLoop(bufio.NewReader(stdout))
	go func() {
		cmd.Wait()
		close(c.done)
	}()

	if err := c.initialize(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// lspCommand picks the sourcekit-lsp invocation for this system.
func lspCommand() (string, []string) {
	if path, err := exec.LookPath("sourcekit-lsp"); err == nil {
		return path, nil
	}
	if runtime.GOOS == "darwin" {
		if path, err := exec.LookPath("xcrun"); err == nil {
			return path, []string{"sourcekit-lsp"}
		}
	}
	return "", nil
}

// SourceKitClient is a minimal LSP client over a sourcekit-lsp process.
// Not safe for concurrent use; the engine confines each instance to one
// worker, so requests are strictly sequential.
type SourceKitClient struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	timeout time.Duration
	root    string

	nextID    int64
	inbox     chan jsonrpcMessage
	done      chan struct{}
	closeOnce sync.Once
}

type jsonrpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// readLoop parses Content-Length framed messages and forwards responses.
// Server notifications and requests are dropped: nothing in the consumed
// capability surface needs them.
func (c *SourceKitClient) readLoop(r *bufio.Reader) {
	for {
		msg, err := readFramedMessage(r)
		if err != nil {
			close(c.inbox)
			return
		}
		if msg.ID == nil || msg.Method != "" {
			continue
		}
		select {
		case c.inbox <- msg:
		case <-c.done:
			return
		}
	}
}

func readFramedMessage(r *bufio.Reader) (jsonrpcMessage, error) {
	var msg jsonrpcMessage
	length := -1
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return msg, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if v, ok := strings.CutPrefix(line, "Content-Length: "); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				length = n
			}
		}
	}
	if length < 0 {
		return msg, fmt.Errorf("missing Content-Length header")
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return msg, err
	}
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, err
	}
	return msg, nil
}

func (c *SourceKitClient) writeMessage(v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.stdin, "Content-Length: %d\r\n\r\n", len(body)); err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	if _, err := c.stdin.Write(body); err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return nil
}

// call sends one request and blocks until its response, the timeout, or
// process death.
func (c *SourceKitClient) call(ctx context.Context, method string, params any, result any) error {
	c.nextID++
	id := c.nextID

	raw, err := json.Marshal(params)
	if err != nil {
		return &OperationError{Op: method, Msg: err.Error()}
	}
	if err := c.writeMessage(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  json.RawMessage(raw),
	}); err != nil {
		return err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	for {
		select {
		case msg, ok := <-c.inbox:
			if !ok {
				return fmt.Errorf("%w: sourcekit-lsp closed its output", ErrConnection)
			}
			if msg.ID == nil || *msg.ID != id {
				continue // stale response from an abandoned request
			}
			if msg.Error != nil {
				return &OperationError{Op: method, Msg: msg.Error.Message}
			}
			if result == nil || len(msg.Result) == 0 {
				return nil
			}
			if err := json.Unmarshal(msg.Result, result); err != nil {
				return &OperationError{Op: method, Msg: fmt.Sprintf("malformed response: %v", err)}
			}
			return nil
		case <-timer.C:
			return fmt.Errorf("%w: %s after %s", ErrTimeout, method, c.timeout)
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %v", ErrTimeout, method, ctx.Err())
		case <-c.done:
			return fmt.Errorf("%w: sourcekit-lsp exited", ErrConnection)
		}
	}
}

func (c *SourceKitClient) notify(method string, params any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return &OperationError{Op: method, Msg: err.Error()}
	}
	return c.writeMessage(map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  json.RawMessage(raw),
	})
}

func (c *SourceKitClient) initialize(ctx context.Context) error {
	params := map[string]any{
		"processId": os.Getpid(),
		"rootURI":   fileURI(c.root),
		"capabilities": map[string]any{
			"textDocument": map[string]any{
				"documentSymbol": map[string]any{
					"hierarchicalDocumentSymbolSupport": true,
				},
			},
		},
	}
	if err := c.call(ctx, "initialize", params, &json.RawMessage{}); err != nil {
		return err
	}
	return c.notify("initialized", map[string]any{})
}

// IsAlive reports whether the sourcekit-lsp process is still running.
func (c *SourceKitClient) IsAlive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// openDocument sends didOpen for a file and returns its source text.
func (c *SourceKitClient) openDocument(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &OperationError{Op: "didOpen", Msg: err.Error()}
	}
	src := string(data)
	err = c.notify("textDocument/didOpen", map[string]any{
		"textDocument": map[string]any{
			"uri":        fileURI(path),
			"languageId": "swift",
			"version":    1,
			"text":       src,
		},
	})
	return src, err
}

func (c *SourceKitClient) closeDocument(path string) {
	if err := c.notify("textDocument/didClose", map[string]any{
		"textDocument": map[string]any{"uri": fileURI(path)},
	}); err != nil {
		log.Printf("[lsp] didClose %s: %v", path, err)
	}
}

// AnalyzeSymbols opens the document and requests its symbol tree.
func (c *SourceKitClient) AnalyzeSymbols(ctx context.Context, path string) ([]Symbol, error) {
	if _, err := c.openDocument(path); err != nil {
		return nil, err
	}
	defer c.closeDocument(path)

	var raw []documentSymbol
	err := c.call(ctx, "textDocument/documentSymbol", map[string]any{
		"textDocument": map[string]any{"uri": fileURI(path)},
	}, &raw)
	if err != nil {
		return nil, err
	}
	return convertSymbols(raw), nil
}

// FindReferences locates symbolName in the file with the text heuristics
// and asks the backend for every reference to that position.
func (c *SourceKitClient) FindReferences(ctx context.Context, path string, symbolName string) ([]Reference, error) {
	src, err := c.openDocument(path)
	if err != nil {
		return nil, err
	}
	defer c.closeDocument(path)

	lines := strings.Split(src, "\n")
	line, char := swiftsrc.FindDeclaration(lines, symbolName)
	if line < 0 {
		return []Reference{}, nil // symbol does not occur in this file
	}

	var raw []location
	err = c.call(ctx, "textDocument/references", map[string]any{
		"textDocument": map[string]any{"uri": fileURI(path)},
		"position":     map[string]any{"line": line, "character": char},
		"context":      map[string]any{"includeDeclaration": true},
	}, &raw)
	if err != nil {
		return nil, err
	}

	refs := make([]Reference, 0, len(raw))
	for _, loc := range raw {
		refPath := uriToPath(loc.URI)
		refs = append(refs, Reference{
			FilePath:  refPath,
			Line:      loc.Range.Start.Line + 1,
			Character: loc.Range.Start.Character,
			Context:   contextLine(refPath, path, lines, loc.Range.Start.Line),
		})
	}
	return refs, nil
}

// Close shuts the backend down, escalating to a kill if it lingers.
func (c *SourceKitClient) Close() error {
	c.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.call(ctx, "shutdown", nil, nil); err == nil {
			c.notify("exit", nil)
		}
		c.stdin.Close()

		select {
		case <-c.done:
		case <-time.After(2 * time.Second):
			c.cmd.Process.Kill()
			<-c.done
		}
	})
	return nil
}

// --- wire types ---

type position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

type lspRange struct {
	Start position `json:"start"`
	End   position `json:"end"`
}

type location struct {
	URI   string   `json:"uri"`
	Range lspRange `json:"range"`
}

type documentSymbol struct {
	Name           string           `json:"name"`
	Kind           int              `json:"kind"`
	SelectionRange lspRange         `json:"selectionRange"`
	Children       []documentSymbol `json:"children"`
}

// lspKindNames maps LSP SymbolKind codes onto the Swift vocabulary.
var lspKindNames = map[int]SymbolKind{
	1:  KindFile,
	2:  KindModule,
	3:  KindNamespace,
	5:  KindClass,
	6:  KindMethod,
	7:  KindProperty,
	8:  KindField,
	9:  KindConstructor,
	10: KindEnum,
	11: KindInterface,
	12: KindFunction,
	13: KindVariable,
	14: KindConstant,
	23: KindStruct,
}

func convertSymbols(raw []documentSymbol) []Symbol {
	symbols := make([]Symbol, 0, len(raw))
	for _, ds := range raw {
		kind, ok := lspKindNames[ds.Kind]
		if !ok {
			kind = KindUnknown
		}
		symbols = append(symbols, Symbol{
			Name:      ds.Name,
			Kind:      kind,
			Line:      ds.SelectionRange.Start.Line + 1,
			Character: ds.SelectionRange.Start.Character,
			Children:  convertSymbols(ds.Children),
		})
	}
	return symbols
}

// contextLine returns the source line a reference points at. For the
// analyzed file the already-loaded lines are used; other files are read
// best-effort.
func contextLine(refPath, analyzedPath string, analyzedLines []string, line int) string {
	if refPath == analyzedPath {
		if line >= 0 && line < len(analyzedLines) {
			return strings.TrimSpace(analyzedLines[line])
		}
		return ""
	}
	data, err := os.ReadFile(refPath)
	if err != nil {
		return ""
	}
	lines := strings.Split(string(data), "\n")
	if line >= 0 && line < len(lines) {
		return strings.TrimSpace(lines[line])
	}
	return ""
}

func fileURI(path string) string {
	return "file://" + path
}

func uriToPath(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}
