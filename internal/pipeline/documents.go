package pipeline

import (
	"fmt"
	"path"
	"strings"
	"time"
	"unicode/utf8"
)

// DocumentSample returns at most n runes from the start of text.
func DocumentSample(text string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	i := 0
	for pos := range text {
		if i == n {
			return text[:pos]
		}
		i++
	}
	return text
}

// DocumentNameFromURI extracts the object file name from a GCS URI or path.
// e.g. "gs://bucket/folder/statement.txt" → "statement.txt"
func DocumentNameFromURI(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return path.Base(trimmed)
	}
	return path.Base(parts[1])
}

// ResultObjectName names the stored result of a document:
// "<base>_<YYYYMMDD_HHMMSS>_result.json".
func ResultObjectName(prefix, documentName string, at time.Time) string {
	base := path.Base(documentName)
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return fmt.Sprintf("%s%s_%s_result.json", prefix, base, at.UTC().Format("20060102_150405"))
}
