package interpreter

import (
	"regexp"
	"strings"

	"github.com/isdmx/execbox/engine"
)

// placeholders printed for an evaluation with no output and no meaningful value
var nullTokens = map[engine.Language]string{
	engine.LanguageJavaScript: "undefined",
	engine.LanguagePython:     "None",
}

var deniedReprs = map[engine.Language][]*regexp.Regexp{
	engine.LanguageJavaScript: {
		regexp.MustCompile(`^undefined$`),
		regexp.MustCompile(`^null$`),
		regexp.MustCompile(`^\[object .*\]$`),
		regexp.MustCompile(`^(async\s+)?function\b`),
	},
	engine.LanguagePython: {
		regexp.MustCompile(`^None$`),
		regexp.MustCompile(`^<module.*>$`),
		regexp.MustCompile(`(?s)^<.*object.*>$`),
		regexp.MustCompile(`^<function .*>$`),
		regexp.MustCompile(`^<built-in .*>$`),
	},
}

// NullToken returns the language's spelling of "no value"
func NullToken(lang engine.Language) string {
	if token, ok := nullTokens[lang]; ok {
		return token
	}
	return "null"
}

// meaningful reports whether a value deserves to be appended to the output
func meaningful(lang engine.Language, v Value) bool {
	if v.Null {
		return false
	}
	repr := strings.TrimSpace(v.Repr)
	if repr == "" {
		return false
	}
	for _, re := range deniedReprs[lang] {
		if re.MatchString(repr) {
			return false
		}
	}
	return true
}

// buildResult combines captured streams and the evaluation value
func buildResult(lang engine.Language, stdout, stderr string, v Value) engine.Result {
	if stderr != "" {
		return engine.Failed(engine.KindRuntimeFailure, stderr)
	}

	out := stdout
	if meaningful(lang, v) {
		if out != "" && !strings.HasSuffix(out, "\n") {
			out += "\n"
		}
		out += v.Repr
	}

	if out == "" {
		out = NullToken(lang)
	}

	return engine.Succeeded(out)
}
