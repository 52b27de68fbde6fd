package lsp

// SymbolKind is the SourceKit-LSP symbol vocabulary as surfaced to tools.
type SymbolKind string

const (
	KindClass       SymbolKind = "Class"
	KindStruct      SymbolKind = "Struct"
	KindEnum        SymbolKind = "Enum"
	KindProtocol    SymbolKind = "Protocol"
	KindFunction    SymbolKind = "Function"
	KindMethod      SymbolKind = "Method"
	KindProperty    SymbolKind = "Property"
	KindVariable    SymbolKind = "Variable"
	KindConstant    SymbolKind = "Constant"
	KindInitializer SymbolKind = "Initializer"
	KindExtension   SymbolKind = "Extension"
	KindFile        SymbolKind = "File"
	KindModule      SymbolKind = "Module"
	KindNamespace   SymbolKind = "Namespace"
	KindField       SymbolKind = "Field"
	KindConstructor SymbolKind = "Constructor"
	KindInterface   SymbolKind = "Interface"
	KindUnknown     SymbolKind = "Unknown"
)

// Symbol is one node of a file's symbol tree.
type Symbol struct {
	Name      string     `json:"name"`
	Kind      SymbolKind `json:"kind"`
	Line      int        `json:"line"`      // 1-based
	Character int        `json:"character"` // 0-based
	Children  []Symbol   `json:"children,omitempty"`
}

// Reference is one occurrence of a symbol in a file.
type Reference struct {
	FilePath  string `json:"file_path"`
	Line      int    `json:"line"`      // 1-based
	Character int    `json:"character"` // 0-based
	Context   string `json:"context"`
}

// CountSymbols returns the total number of symbols in a tree, children
// included.
func CountSymbols(symbols []Symbol) int {
	n := 0
	for _, s := range symbols {
		n += 1 + CountSymbols(s.Children)
	}
	return n
}
