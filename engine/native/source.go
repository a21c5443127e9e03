package native

import (
	"regexp"
	"strings"
)

// DefaultClassName is used when the source declares no class
const DefaultClassName = "Main"

var (
	packageDecl = regexp.MustCompile(`(?m)^[ \t]*package[ \t]+[\w.]+[ \t]*;[ \t]*(\r?\n)?`)
	importDecl  = regexp.MustCompile(`(?m)^[ \t]*import[ \t]+(static[ \t]+)?[\w.*]+[ \t]*;[ \t]*$`)
	blankRuns   = regexp.MustCompile(`\n([ \t]*\r?\n){2,}`)
	typeDecl    = regexp.MustCompile(`\b(class|interface|enum|record)\s+\w+`)
	mainMethod  = regexp.MustCompile(`\bstatic\s+void\s+main\s*\(`)
	publicClass = regexp.MustCompile(`\bpublic\s+(?:(?:final|abstract|static|sealed)\s+)*class\s+(\w+)`)
	anyClass    = regexp.MustCompile(`\bclass\s+(\w+)`)
)

// normalizeSource makes a snippet compilable as a standalone file: the package
// declaration is dropped, blank-line runs are collapsed and a bare main method
// is wrapped in a Main class.
func normalizeSource(code string) string {
	source := packageDecl.ReplaceAllString(code, "")
	source = blankRuns.ReplaceAllString(source, "\n\n")

	if typeDecl.MatchString(source) || !mainMethod.MatchString(source) {
		return strings.TrimSpace(source) + "\n"
	}

	imports := importDecl.FindAllString(source, -1)
	body := strings.TrimSpace(importDecl.ReplaceAllString(source, ""))

	var b strings.Builder
	for _, imp := range imports {
		b.WriteString(strings.TrimSpace(imp))
		b.WriteString("\n")
	}
	if len(imports) > 0 {
		b.WriteString("\n")
	}
	b.WriteString("public class " + DefaultClassName + " {\n")
	b.WriteString(body)
	b.WriteString("\n}\n")

	return b.String()
}

// entryClassName picks the class to compile and run
func entryClassName(source string) string {
	if m := publicClass.FindStringSubmatch(source); m != nil {
		return m[1]
	}
	if m := anyClass.FindStringSubmatch(source); m != nil {
		return m[1]
	}
	return DefaultClassName
}
