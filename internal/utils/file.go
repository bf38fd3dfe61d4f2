package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// GetFileExtension returns the lowercased file extension without the dot
func GetFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

var imageExts = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true,
	"bmp": true, "tif": true, "tiff": true, "webp": true,
}

// IsImageFile checks if a file has an extension the decoder understands
func IsImageFile(filename string) bool {
	return imageExts[GetFileExtension(filename)]
}

// AnnotatedFilename builds the output path for an annotated copy of input,
// e.g. out/kitchen_annotated.png. An empty format means png.
func AnnotatedFilename(inputFile, outputDir, format string) string {
	baseName := filepath.Base(inputFile)
	name := SanitizeFilename(strings.TrimSuffix(baseName, filepath.Ext(baseName)))
	if name == "" {
		name = "image"
	}

	format = strings.TrimPrefix(strings.ToLower(format), ".")
	if format == "" {
		format = "png"
	}

	return filepath.Join(outputDir, fmt.Sprintf("%s_annotated.%s", name, format))
}

// FileExists checks if a file exists and is not a directory
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// DirExists checks if a directory exists
func DirExists(dirname string) bool {
	info, err := os.Stat(dirname)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// SanitizeFilename removes or replaces invalid characters in filenames
func SanitizeFilename(filename string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := filename

	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}

	return strings.Trim(result, " .")
}

// ReadSpec resolves a spec source: "-" reads stdin, text starting with "{" is
// inline JSON, anything else is a file path. An empty source is an empty spec.
func ReadSpec(source string, stdin io.Reader) (string, error) {
	switch {
	case source == "":
		return "", nil
	case source == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read spec from stdin: %w", err)
		}
		return string(data), nil
	case strings.HasPrefix(strings.TrimSpace(source), "{"):
		return source, nil
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return "", fmt.Errorf("failed to read spec file: %w", err)
	}
	return string(data), nil
}

// FormatFileSize formats file size in human-readable format
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
