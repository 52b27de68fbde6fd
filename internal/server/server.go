package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"runtime"

	json "github.com/goccy/go-json"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/swiftlens/swiftlens-go/internal/config"
	"github.com/swiftlens/swiftlens-go/internal/engine"
	"github.com/swiftlens/swiftlens-go/internal/validate"
)

// Server wraps the MCP server and connects it to the analysis engine.
type Server struct {
	mcp *mcp.Server
	eng *engine.Engine
	cfg *config.Config
}

// New creates a new MCP server wired to the given engine.
func New(eng *engine.Engine, cfg *config.Config) (*Server, error) {
	s := &Server{
		eng: eng,
		cfg: cfg,
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "swiftlens",
		Version: "0.1.0",
	}, nil)

	s.mcp = mcpServer
	s.registerTools()

	return s, nil
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	log.Println("[server] starting MCP server on stdio transport")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// analyzeFilesArgs are the arguments for the swift_analyze_files tool.
type analyzeFilesArgs struct {
	FilePaths []string `json:"file_paths" jsonschema:"required,Swift file paths to analyze"`
}

// analyzeFileArgs are the arguments for the swift_analyze_file tool.
type analyzeFileArgs struct {
	FilePath string `json:"file_path" jsonschema:"required,Path to the Swift file to analyze"`
}

// findReferencesFilesArgs are the arguments for swift_find_symbol_references_files.
type findReferencesFilesArgs struct {
	FilePaths  []string `json:"file_paths" jsonschema:"required,Swift file paths to search"`
	SymbolName string   `json:"symbol_name" jsonschema:"required,Name of the symbol to find references for"`
}

// fileImportsArgs are the arguments for the swift_get_file_imports tool.
type fileImportsArgs struct {
	FilePath string `json:"file_path" jsonschema:"required,Path to the Swift file"`
}

// registerTools adds the MCP tools for batch analysis, reference search,
// and the lightweight text utilities.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "swift_analyze_files",
		Description: "Analyze multiple Swift files and extract their symbol structures using SourceKit-LSP. Files are processed in parallel with per-file error isolation.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args analyzeFilesArgs) (*mcp.CallToolResult, any, error) {
		resp := s.analyzeFiles(ctx, args.FilePaths)
		return jsonResult(resp), nil, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "swift_analyze_file",
		Description: "Analyze a single Swift file and extract its symbol structure using SourceKit-LSP.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args analyzeFileArgs) (*mcp.CallToolResult, any, error) {
		resp := s.analyzeFiles(ctx, []string{args.FilePath})
		if one, ok := resp.Files[args.FilePath]; ok && resp.Success {
			return jsonResult(one), nil, nil
		}
		return jsonResult(resp), nil, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "swift_find_symbol_references_files",
		Description: "Find all references to a symbol across multiple Swift files using SourceKit-LSP. Files are processed in parallel with per-file error isolation.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args findReferencesFilesArgs) (*mcp.CallToolResult, any, error) {
		resp := s.findReferences(ctx, args.FilePaths, args.SymbolName)
		return jsonResult(resp), nil, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "swift_get_file_imports",
		Description: "Extract all import statements from a Swift file. Pure text analysis, no LSP backend required.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args fileImportsArgs) (*mcp.CallToolResult, any, error) {
		return jsonResult(s.fileImports(args.FilePath)), nil, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "swift_check_environment",
		Description: "Check that the Swift analysis environment is ready: SourceKit-LSP availability and effective engine configuration.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args struct{}) (*mcp.CallToolResult, any, error) {
		return jsonResult(s.checkEnvironment()), nil, nil
	})
}

// analyzeFiles validates the batch, runs the symbol-analysis operation,
// and merges validation rejections with engine results into one response.
func (s *Server) analyzeFiles(ctx context.Context, paths []string) *multiFileAnalysisResponse {
	resp := &multiFileAnalysisResponse{
		Files:      map[string]fileAnalysisResult{},
		TotalFiles: len(paths),
	}

	valid, invalid, err := s.prepareBatch(paths)
	if err != nil {
		resp.Error = err.Error()
		resp.ErrorType = string(engine.ErrorValidation)
		return resp
	}

	for origPath, verr := range invalid {
		resp.Files[origPath] = fileAnalysisResult{
			FilePath:  origPath,
			Error:     verr.Error(),
			ErrorType: validationErrorType(verr),
		}
	}

	if len(valid) > 0 {
		batch, err := s.eng.AnalyzeBatch(ctx, valid, engine.Operation{Kind: engine.OpAnalyzeSymbols})
		if err != nil {
			resp.Error = err.Error()
			resp.ErrorType = string(engine.ErrorValidation)
			return resp
		}
		for path, fr := range batch.Files {
			resp.Files[path] = fileAnalysisResult{
				Success:     fr.Success,
				FilePath:    fr.Path,
				Symbols:     fr.Symbols,
				SymbolCount: fr.UnitCount,
				Error:       fr.ErrMsg,
				ErrorType:   string(fr.ErrKind),
			}
		}
		resp.TotalSymbols = batch.TotalUnits
	}

	resp.TotalFiles = len(resp.Files)
	resp.Success = true
	return resp
}

// findReferences is the reference-search twin of analyzeFiles.
func (s *Server) findReferences(ctx context.Context, paths []string, symbolName string) *multiFileReferencesResponse {
	resp := &multiFileReferencesResponse{
		SymbolName: symbolName,
		Files:      map[string]symbolReferencesResult{},
		TotalFiles: len(paths),
	}

	valid, invalid, err := s.prepareBatch(paths)
	if err != nil {
		resp.Error = err.Error()
		resp.ErrorType = string(engine.ErrorValidation)
		return resp
	}

	for origPath, verr := range invalid {
		resp.Files[origPath] = symbolReferencesResult{
			FilePath:   origPath,
			SymbolName: symbolName,
			Error:      verr.Error(),
			ErrorType:  validationErrorType(verr),
		}
	}

	if len(valid) > 0 {
		batch, err := s.eng.AnalyzeBatch(ctx, valid, engine.Operation{
			Kind:       engine.OpFindReferences,
			SymbolName: symbolName,
		})
		if err != nil {
			resp.Error = err.Error()
			resp.ErrorType = string(engine.ErrorValidation)
			return resp
		}
		for path, fr := range batch.Files {
			resp.Files[path] = symbolReferencesResult{
				Success:        fr.Success,
				FilePath:       fr.Path,
				SymbolName:     symbolName,
				References:     fr.References,
				ReferenceCount: fr.UnitCount,
				Error:          fr.ErrMsg,
				ErrorType:      string(fr.ErrKind),
			}
		}
		resp.TotalReferences = batch.TotalUnits
	} else if symbolName == "" {
		// No valid files hides an empty symbol name; report it anyway.
		resp.Error = engine.ErrEmptySymbol.Error()
		resp.ErrorType = string(engine.ErrorValidation)
		return resp
	}

	resp.TotalFiles = len(resp.Files)
	resp.Success = true
	return resp
}

// prepareBatch enforces the batch-level limits, then splits paths into
// validated ones and per-path rejections. Batch limit violations are
// checked against the raw input count, before any validation work.
func (s *Server) prepareBatch(paths []string) (valid []string, invalid map[string]*validate.Error, err error) {
	if len(paths) == 0 {
		return nil, nil, engine.ErrNoFiles
	}
	if len(paths) > s.eng.MaxFiles() {
		return nil, nil, &engine.TooManyFilesError{Count: len(paths), Max: s.eng.MaxFiles()}
	}

	invalid = map[string]*validate.Error{}
	opts := validate.Options{AllowOutsideCWD: s.cfg.AllowOutsideCWD}
	for _, p := range paths {
		if _, verr := validate.SwiftFile(p, opts); verr != nil {
			var ve *validate.Error
			if errors.As(verr, &ve) {
				invalid[p] = ve
			} else {
				invalid[p] = &validate.Error{Path: p, Reason: validate.ReasonInvalidPath}
			}
			continue
		}
		// Keep the original string: the engine records results under it.
		valid = append(valid, p)
	}
	return valid, invalid, nil
}

// fileImports extracts import statements without touching the backend.
func (s *Server) fileImports(path string) *fileImportsResponse {
	resp := &fileImportsResponse{FilePath: path}

	real, err := validate.SwiftFile(path, validate.Options{AllowOutsideCWD: s.cfg.AllowOutsideCWD})
	if err != nil {
		var ve *validate.Error
		if errors.As(err, &ve) {
			resp.ErrorType = validationErrorType(ve)
		} else {
			resp.ErrorType = string(engine.ErrorValidation)
		}
		resp.Error = err.Error()
		return resp
	}

	data, err := os.ReadFile(real)
	if err != nil {
		resp.Error = fmt.Sprintf("cannot read file: %v", err)
		resp.ErrorType = string(engine.ErrorValidation)
		return resp
	}

	resp.Success = true
	resp.FilePath = real
	resp.Imports = importsOrEmpty(data)
	resp.ImportCount = len(resp.Imports)
	return resp
}

// checkEnvironment reports backend availability and effective limits.
func (s *Server) checkEnvironment() *environmentResponse {
	resp := &environmentResponse{
		Success: true,
		OS:      runtime.GOOS,
		Checks:  map[string]bool{},
		Config: environmentConfig{
			Workers:   s.eng.Workers(),
			MaxFiles:  s.eng.MaxFiles(),
			CacheSize: s.cfg.CacheSize,
		},
	}

	_, err := exec.LookPath("sourcekit-lsp")
	resp.Checks["sourcekit_lsp_on_path"] = err == nil
	if err != nil && runtime.GOOS == "darwin" {
		// On macOS the toolchain usually routes through xcrun instead.
		_, xerr := exec.LookPath("xcrun")
		resp.Checks["xcrun_on_path"] = xerr == nil
	}

	resp.Ready = resp.Checks["sourcekit_lsp_on_path"] || resp.Checks["xcrun_on_path"]
	if !resp.Ready {
		resp.Recommendation = "Install a Swift toolchain so sourcekit-lsp (or xcrun on macOS) is on PATH."
	}
	return resp
}

// jsonResult serializes a response envelope into a text content block.
func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("failed to marshal response: %v", err))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}

// validationErrorType maps a validation rejection onto the response
// error-type vocabulary. File-not-found keeps its own type; everything
// else is a validation error.
func validationErrorType(err *validate.Error) string {
	if err.Reason == validate.ReasonNotFound {
		return "file_not_found"
	}
	return string(engine.ErrorValidation)
}
