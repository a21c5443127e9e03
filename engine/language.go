package engine

import "strings"

// Language is a member of the supported language set
type Language string

// Supported languages
const (
	LanguageJava       Language = "java"
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageC          Language = "c"
	LanguageCPP        Language = "cpp"
	LanguageGo         Language = "go"
	LanguageRust       Language = "rust"
)

// FallbackFilename is used for languages without an entry in the filename table
const FallbackFilename = "Main.txt"

var supportedLanguages = map[Language]bool{
	LanguageJava:       true,
	LanguagePython:     true,
	LanguageJavaScript: true,
	LanguageC:          true,
	LanguageCPP:        true,
	LanguageGo:         true,
	LanguageRust:       true,
}

var languageAliases = map[string]Language{
	"js":     LanguageJavaScript,
	"py":     LanguagePython,
	"c++":    LanguageCPP,
	"golang": LanguageGo,
}

var defaultFilenames = map[Language]string{
	LanguageJava:       "Main.java",
	LanguagePython:     "main.py",
	LanguageJavaScript: "main.js",
	LanguageC:          "main.c",
	LanguageCPP:        "main.cpp",
	LanguageGo:         "main.go",
	LanguageRust:       "main.rs",
}

// ParseLanguage normalizes a language name (case-insensitive, aliases allowed)
func ParseLanguage(name string) (Language, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := languageAliases[key]; ok {
		return alias, true
	}
	lang := Language(key)
	return lang, supportedLanguages[lang]
}

// DefaultFilename returns the source file name used when a request carries none
func DefaultFilename(lang Language) string {
	if name, ok := defaultFilenames[lang]; ok {
		return name
	}
	return FallbackFilename
}

func (l Language) String() string {
	return string(l)
}
