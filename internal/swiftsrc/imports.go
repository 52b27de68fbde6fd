// Package swiftsrc holds line-based text heuristics over Swift source.
// These are deliberately regex-level: anything needing real Swift
// semantics goes through the LSP backend instead.
package swiftsrc

import (
	"bufio"
	"regexp"
	"strings"
)

// importPattern matches a Swift import statement:
//   - basic imports: import Foundation
//   - submodule imports: import UIKit.UIView
//   - attributed imports: @testable import MyApp, @_exported @testable import X
//   - scoped imports: import struct Foundation.Date
//   - trailing comments are excluded from the capture
//
// Conditional compilation (#if blocks) is not evaluated.
var importPattern = regexp.MustCompile(
	`^\s*` +
		`((?:@\w+\s+)*` + // zero or more attributes
		`import(?:\s+(?:struct|class|func|enum|protocol|var|let))?` + // optional scope kind
		`\s+[A-Za-z_][A-Za-z0-9_.]*)`, // module path
)

// ExtractImports returns every import statement found in src, in file
// order, with attributes preserved and trailing comments stripped.
func ExtractImports(src string) []string {
	var imports []string
	scanner := bufio.NewScanner(strings.NewReader(src))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		m := importPattern.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		imports = append(imports, strings.Join(strings.Fields(m[1]), " "))
	}
	return imports
}
