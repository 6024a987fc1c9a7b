package bubble

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/comigor/chatgpt-local/internal/logger"
)

var imageFg = lipgloss.Color("#8a8a8a")

type imageInfo struct {
	path     string
	widthPx  int
	heightPx int
	ok       bool
}

// probeImage reads only the image header to learn its pixel size.
func probeImage(path string) imageInfo {
	info := imageInfo{path: path}
	f, err := os.Open(path)
	if err != nil {
		logger.L.Warn("image bubble: open failed", "path", path, "error", err)
		return info
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		logger.L.Warn("image bubble: unreadable image", "path", path, "error", err)
		return info
	}
	info.widthPx, info.heightPx, info.ok = cfg.Width, cfg.Height, true
	return info
}

func (i imageInfo) label() string {
	name := filepath.Base(i.path)
	if !i.ok {
		return name
	}
	return fmt.Sprintf("%s %dx%d", name, i.widthPx, i.heightPx)
}

// scaledPx fits the image in a maxW x maxH pixel box without enlarging it.
func (i imageInfo) scaledPx(maxW, maxH int) (int, int) {
	scale := math.Min(1, math.Min(float64(maxW)/float64(i.widthPx), float64(maxH)/float64(i.heightPx)))
	w := int(math.Round(float64(i.widthPx) * scale))
	h := int(math.Round(float64(i.heightPx) * scale))
	return max(w, 1), max(h, 1)
}

// cells is the bubble size of the image, at most maxCols wide.
func (i imageInfo) cells(maxCols int) (int, int) {
	if !i.ok {
		return min(max(TextMinWidth, runewidth.StringWidth(i.label())+2), maxCols), TextMinHeight
	}
	w, h := i.scaledPx(min(maxCols*cellWidthPx, imageMaxWidthPx), imageMaxHeightPx)
	return cols(w), rows(h)
}

func (i imageInfo) render(w, h int) string {
	fill := strings.Repeat("░", w)
	lines := make([]string, h)
	for n := range lines {
		lines[n] = fill
	}
	label := runewidth.Truncate(i.label(), w, "…")
	lines[h/2] = lipgloss.PlaceHorizontal(w, lipgloss.Center, label, lipgloss.WithWhitespaceChars("░"))
	return lipgloss.NewStyle().Foreground(imageFg).Render(strings.Join(lines, "\n"))
}
