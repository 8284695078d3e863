package convert

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"bloomepub/config"
	"bloomepub/content"
	"bloomepub/state"
)

const outputExt = ".epub"

// buildOutputPath returns constructed output file path/name. Destination
// ending with .epub is used as is, otherwise it is a directory and file name
// comes either from source name or from user-defined template. Path is
// cleaned up and if requested transliterated.
func buildOutputPath(book *content.Book, name, dst string, env *state.LocalEnv) string {
	if strings.EqualFold(filepath.Ext(dst), outputExt) {
		return dst
	}

	defaultFile := buildDefaultFileName(name, env)
	if env.Cfg.Document.OutputNameTemplate == "" {
		return filepath.Join(dst, defaultFile)
	}

	expandedName := expandOutputNameTemplate(book, name, env)
	if expandedName == "" {
		// fallback to default name if template expansion failed
		return filepath.Join(dst, defaultFile)
	}

	return assemblePathWithSubdirs(dst, expandedName, env)
}

func buildDefaultFileName(name string, env *state.LocalEnv) string {
	baseName := name
	if baseName == "" {
		baseName = "book"
	}
	if env.Cfg.Document.FileNameTransliterate {
		baseName = slug.Make(baseName)
	}
	return config.CleanFileName(baseName) + outputExt
}

func expandOutputNameTemplate(book *content.Book, name string, env *state.LocalEnv) string {
	expandedName, err := expandTemplate(book, config.OutputNameTemplateFieldName, env.Cfg.Document.OutputNameTemplate, name)
	if err != nil {
		env.Log.Warn("Unable to prepare output filename", zap.Error(err))
		return ""
	}
	return filepath.FromSlash(strings.TrimSpace(expandedName))
}

// assemblePathWithSubdirs takes an expanded template name (which may contain
// path separators for subdirectories) and assembles it into a full output path,
// cleaning and transliterating segments as needed
func assemblePathWithSubdirs(outDir, expandedName string, env *state.LocalEnv) string {
	pathSegments := splitAndCleanPath(expandedName)
	if len(pathSegments) == 0 {
		return filepath.Join(outDir, "book"+outputExt)
	}

	fileName := cleanPathSegment(pathSegments[len(pathSegments)-1], env) + outputExt
	dirParts := make([]string, 0, len(pathSegments)+1)
	dirParts = append(dirParts, outDir)

	for _, segment := range pathSegments[:len(pathSegments)-1] {
		dirParts = append(dirParts, cleanPathSegment(segment, env))
	}

	dirParts = append(dirParts, fileName)
	return filepath.Join(dirParts...)
}

func splitAndCleanPath(path string) []string {
	path = strings.TrimSuffix(path, string(os.PathSeparator))
	segments := make([]string, 0, 8)

	for head, tail := filepath.Split(path); tail != ""; head, tail = filepath.Split(head) {
		if tail != "." && tail != ".." {
			segments = slices.Insert(segments, 0, tail)
		}
		head = strings.TrimSuffix(head, string(os.PathSeparator))
		if head == "" {
			break
		}
	}

	return segments
}

func cleanPathSegment(segment string, env *state.LocalEnv) string {
	if env.Cfg.Document.FileNameTransliterate {
		segment = slug.Make(segment)
	}
	return config.CleanFileName(segment)
}
