package utils

import (
	"mime"
	"path"
	"strings"
)

const defaultContentType = "application/octet-stream"

// ContentTypeFor picks the Content-Type stored with an object named name.
func ContentTypeFor(name string) string {
	ext := strings.ToLower(path.Ext(name))
	switch ext {
	case "":
		return defaultContentType
	case ".md", ".txt", ".log", ".csv", ".yaml", ".yml", ".toml":
		return "text/plain; charset=utf-8"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return defaultContentType
}
