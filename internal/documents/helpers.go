package documents

import (
	"math"
	"path/filepath"
	"strconv"
	"strings"
)

// FormatFileSize renders a byte count in the unit shown in listings.
func FormatFileSize(bytes int64) string {
	if bytes == 0 {
		return "0 Bytes"
	}
	sizes := []string{"Bytes", "KB", "MB", "GB"}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(sizes) {
		i = len(sizes) - 1
	}
	v := float64(bytes) / math.Pow(1024, float64(i))
	v = math.Round(v*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + sizes[i]
}

var mimeTypes = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".txt":  "text/plain",
	".rtf":  "application/rtf",
	".csv":  "text/csv",
	".json": "application/json",
	".xml":  "application/xml",
	".html": "text/html",
	".md":   "text/markdown",
}

// MimeTypeFromExtension guesses the content type for uploads whose browser
// side did not provide one.
func MimeTypeFromExtension(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if mt, ok := mimeTypes[ext]; ok {
		return mt
	}
	return "application/octet-stream"
}

var formatTags = map[string]string{
	".pdf":  "pdf",
	".doc":  "word",
	".docx": "word",
	".xls":  "excel",
	".xlsx": "excel",
	".ppt":  "powerpoint",
	".pptx": "powerpoint",
	".txt":  "text",
	".csv":  "data",
}

// keyword -> tag pairs matched against the lowercased file name. Ordered so
// tag output is deterministic.
var contentKeywords = []struct{ keyword, tag string }{
	{"proposal", "proposal"},
	{"report", "report"},
	{"contract", "contract"},
	{"material", "material"},
	{"meeting", "meeting"},
	{"sales", "sales"},
	{"hr", "hr"},
	{"finance", "finance"},
	{"tech", "technical"},
	{"specification", "specification"},
	{"spec", "specification"},
	{"manual", "manual"},
}

// AutoTags derives listing tags from a file name: one for the file format plus
// any content keywords it mentions. Falls back to a generic tag.
func AutoTags(fileName string) []string {
	var tags []string
	if t, ok := formatTags[strings.ToLower(filepath.Ext(fileName))]; ok {
		tags = append(tags, t)
	}
	lower := strings.ToLower(fileName)
	for _, kw := range contentKeywords {
		if strings.Contains(lower, kw.keyword) && !contains(tags, kw.tag) {
			tags = append(tags, kw.tag)
		}
	}
	if len(tags) == 0 {
		return []string{"document"}
	}
	return tags
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
