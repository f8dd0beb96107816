package indexer

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Crop margins for running headers and footers, in points.
const (
	headerCropPt = 46
	footerCropPt = 57
)

// RemoveHeaderFooterCrop trims page headers and footers before extraction.
// top and bottom are in points (1 pt = 1/72 inch).
func RemoveHeaderFooterCrop(inputPath, outputPath string, top, bottom float64) error {
	conf := api.LoadConfiguration()

	pages := []string{"1-"}

	cropStr := fmt.Sprintf("%.2f 0 %.2f 0", top, bottom)

	box, err := model.ParseBox(cropStr, types.POINTS)
	if err != nil {
		return fmt.Errorf("failed to parse crop box: %w", err)
	}

	if err := api.CropFile(inputPath, outputPath, pages, box, conf); err != nil {
		return fmt.Errorf("failed to crop PDF: %w", err)
	}

	return nil
}

var pdfTextShowRe = regexp.MustCompile(`\((?:[^()\\]|\\.)*\)\s*T[jJ]|\[(?:[^\[\]\\]|\\.)*\]\s*TJ`)
var pdfStringRe = regexp.MustCompile(`\((?:[^()\\]|\\.)*\)`)

// ExtractPDFText validates the file and pulls text from its content streams.
// Extraction is best effort, a file with image-only pages yields nothing and
// should be routed to the bad directory by the caller.
func ExtractPDFText(path string) (string, error) {
	if err := api.ValidateFile(path, api.LoadConfiguration()); err != nil {
		return "", fmt.Errorf("invalid PDF: %w", err)
	}

	tmpDir, err := os.MkdirTemp("", "pdfextract")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmpDir)

	// Crop page furniture into a scratch copy so headers and footers do
	// not leak into chunks. The source file stays untouched and an odd
	// page geometry falls back to uncropped extraction.
	src := path
	cropped := filepath.Join(tmpDir, "cropped.pdf")
	if err := RemoveHeaderFooterCrop(path, cropped, headerCropPt, footerCropPt); err == nil {
		src = cropped
	}

	contentDir := filepath.Join(tmpDir, "content")
	if err := os.MkdirAll(contentDir, 0755); err != nil {
		return "", err
	}
	if err := api.ExtractContentFile(src, contentDir, nil, api.LoadConfiguration()); err != nil {
		return "", fmt.Errorf("extract content: %w", err)
	}

	entries, err := os.ReadDir(contentDir)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(contentDir, entry.Name()))
		if err != nil {
			continue
		}
		sb.WriteString(decodeContentStream(string(data)))
		sb.WriteString("\n")
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("no extractable text in %s", filepath.Base(path))
	}
	return text, nil
}

// decodeContentStream picks the literal strings out of Tj and TJ show
// operators. Encoded fonts are not resolved.
func decodeContentStream(stream string) string {
	var sb strings.Builder
	for _, op := range pdfTextShowRe.FindAllString(stream, -1) {
		for _, lit := range pdfStringRe.FindAllString(op, -1) {
			sb.WriteString(unescapePDFString(lit[1 : len(lit)-1]))
		}
		sb.WriteString(" ")
	}
	return sb.String()
}

func unescapePDFString(s string) string {
	replacer := strings.NewReplacer(
		`\(`, "(",
		`\)`, ")",
		`\\`, `\`,
		`\n`, "\n",
		`\r`, "",
		`\t`, " ",
	)
	return replacer.Replace(s)
}
