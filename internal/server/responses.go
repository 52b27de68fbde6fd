package server

import (
	"github.com/swiftlens/swiftlens-go/internal/lsp"
	"github.com/swiftlens/swiftlens-go/internal/swiftsrc"
)

// Response envelopes. The engine itself is wire-agnostic; these structs
// are the JSON surface the MCP tools expose.

type fileAnalysisResult struct {
	Success     bool         `json:"success"`
	FilePath    string       `json:"file_path"`
	Symbols     []lsp.Symbol `json:"symbols"`
	SymbolCount int          `json:"symbol_count"`
	Error       string       `json:"error,omitempty"`
	ErrorType   string       `json:"error_type,omitempty"`
}

type multiFileAnalysisResponse struct {
	Success      bool                          `json:"success"`
	Files        map[string]fileAnalysisResult `json:"files"`
	TotalFiles   int                           `json:"total_files"`
	TotalSymbols int                           `json:"total_symbols"`
	Error        string                        `json:"error,omitempty"`
	ErrorType    string                        `json:"error_type,omitempty"`
}

type symbolReferencesResult struct {
	Success        bool            `json:"success"`
	FilePath       string          `json:"file_path"`
	SymbolName     string          `json:"symbol_name"`
	References     []lsp.Reference `json:"references"`
	ReferenceCount int             `json:"reference_count"`
	Error          string          `json:"error,omitempty"`
	ErrorType      string          `json:"error_type,omitempty"`
}

type multiFileReferencesResponse struct {
	Success         bool                              `json:"success"`
	SymbolName      string                            `json:"symbol_name"`
	Files           map[string]symbolReferencesResult `json:"files"`
	TotalFiles      int                               `json:"total_files"`
	TotalReferences int                               `json:"total_references"`
	Error           string                            `json:"error,omitempty"`
	ErrorType       string                            `json:"error_type,omitempty"`
}

type fileImportsResponse struct {
	Success     bool     `json:"success"`
	FilePath    string   `json:"file_path"`
	Imports     []string `json:"imports"`
	ImportCount int      `json:"import_count"`
	Error       string   `json:"error,omitempty"`
	ErrorType   string   `json:"error_type,omitempty"`
}

type environmentConfig struct {
	Workers   int `json:"workers"`
	MaxFiles  int `json:"max_files"`
	CacheSize int `json:"cache_size"`
}

type environmentResponse struct {
	Success        bool              `json:"success"`
	Ready          bool              `json:"ready"`
	OS             string            `json:"os"`
	Checks         map[string]bool   `json:"checks"`
	Config         environmentConfig `json:"config"`
	Recommendation string            `json:"recommendation,omitempty"`
}

// importsOrEmpty keeps the imports field a JSON array even for files
// with no imports.
func importsOrEmpty(src []byte) []string {
	imports := swiftsrc.ExtractImports(string(src))
	if imports == nil {
		return []string{}
	}
	return imports
}
