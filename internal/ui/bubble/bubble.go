// Package bubble renders a single chat message as an avatar, a pointer and a
// content area sized to the message.
//
// Sizes are specified in pixels, like a windowed chat client, and converted to
// terminal cells at cellWidthPx x cellHeightPx per cell.
package bubble

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/reflow/wrap"
)

const (
	cellWidthPx  = 8
	cellHeightPx = 16

	textMaxWidthPx   = 800
	textMinWidthPx   = 100
	textMinHeightPx  = 45
	textPaddingPx    = 30
	avatarPx         = 45
	pointerWidthPx   = 6
	imageMaxWidthPx  = 480
	imageMaxHeightPx = 720
)

// cols and rows round a pixel length up to whole cells.
func cols(px int) int { return (px + cellWidthPx - 1) / cellWidthPx }
func rows(px int) int { return (px + cellHeightPx - 1) / cellHeightPx }

var (
	TextMaxWidth   = cols(textMaxWidthPx)
	TextMinWidth   = cols(textMinWidthPx)
	TextMinHeight  = rows(textMinHeightPx)
	AvatarWidth    = cols(avatarPx) + 1 // a terminal cell is twice as tall as wide
	AvatarHeight   = rows(avatarPx)
	PointerWidth   = cols(pointerWidthPx)
	ImageMaxWidth  = cols(imageMaxWidthPx)
	ImageMaxHeight = rows(imageMaxHeightPx)

	padX = cols(textPaddingPx) / 2
	padY = 1
)

var ErrUnknownKind = errors.New("unknown message kind")

// Kind is the content type of a bubble.
type Kind int

const (
	KindText Kind = iota + 1
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Avatar is the fixed square drawn beside the content.
type Avatar struct {
	Label string
	Fg    lipgloss.Color
	Bg    lipgloss.Color
}

var (
	DefaultSelf = Avatar{Label: "Me", Fg: lipgloss.Color("#1b1b1b"), Bg: lipgloss.Color("#b2e281")}
	DefaultPeer = Avatar{Label: "AI", Fg: lipgloss.Color("#ffffff"), Bg: lipgloss.Color("#6b5bd6")}

	sentFg     = lipgloss.Color("#1b1b1b")
	sentBg     = lipgloss.Color("#b2e281")
	receivedFg = lipgloss.Color("#1b1b1b")
	receivedBg = lipgloss.Color("#ffffff")
)

// Bubble is the render data of one message. Sent bubbles are mirrored: the
// avatar and pointer sit on the trailing edge.
type Bubble struct {
	kind   Kind
	sent   bool
	avatar Avatar
	text   strings.Builder
	image  imageInfo
}

// New builds a bubble. For KindImage content is a file path.
func New(kind Kind, content string, sent bool, avatar Avatar) (*Bubble, error) {
	b := &Bubble{kind: kind, sent: sent, avatar: avatar}
	switch kind {
	case KindText:
		b.text.WriteString(content)
	case KindImage:
		b.image = probeImage(content)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(kind))
	}
	return b, nil
}

// NewText builds a text bubble.
func NewText(content string, sent bool, avatar Avatar) *Bubble {
	b := &Bubble{kind: KindText, sent: sent, avatar: avatar}
	b.text.WriteString(content)
	return b
}

func (b *Bubble) Kind() Kind   { return b.kind }
func (b *Bubble) Sent() bool   { return b.sent }
func (b *Bubble) Text() string { return b.text.String() }

// AppendText grows a text bubble in place. Image bubbles ignore it.
func (b *Bubble) AppendText(delta string) {
	if b.kind != KindText {
		return
	}
	b.text.WriteString(delta)
}

// SetText replaces the content of a text bubble.
func (b *Bubble) SetText(text string) {
	if b.kind != KindText {
		return
	}
	b.text.Reset()
	b.text.WriteString(text)
}

var plainReplacer = strings.NewReplacer("\t", "    ", "\r", "")

// plain is the text as it will be laid out.
func (b *Bubble) plain() string {
	return plainReplacer.Replace(b.text.String())
}

// chrome is the width taken by avatar and pointer on one side.
func chrome() int { return AvatarWidth + PointerWidth }

// available is the widest content area that fits in a row of width cells,
// keeping an empty gutter the size of the avatar on the opposite side.
func available(width int) int {
	return max(width-2*chrome(), TextMinWidth)
}

// ContentSize reports the content area in cells for a row of width cells.
func (b *Bubble) ContentSize(width int) (w, h int) {
	if b.kind == KindImage {
		return b.image.cells(min(ImageMaxWidth, available(width)))
	}
	lines := b.wrapText(width)
	return b.textWidth(width), max(len(lines)+2*padY, TextMinHeight)
}

func (b *Bubble) textWidth(width int) int {
	limit := min(TextMaxWidth, available(width))
	natural := 0
	for _, line := range strings.Split(b.plain(), "\n") {
		natural = max(natural, runewidth.StringWidth(line))
	}
	return min(max(natural+2*padX, TextMinWidth), limit)
}

func (b *Bubble) wrapText(width int) []string {
	inner := b.textWidth(width) - 2*padX
	s := wordwrap.String(b.plain(), inner)
	s = wrap.String(s, inner)
	return strings.Split(s, "\n")
}

// Render draws the bubble aligned within a row of width cells.
func (b *Bubble) Render(width int) string {
	var content string
	if b.kind == KindImage {
		w, h := b.ContentSize(width)
		content = b.image.render(w, h)
	} else {
		content = b.renderText(width)
	}
	pointer := b.renderPointer()
	avatar := b.renderAvatar()

	if b.sent {
		row := lipgloss.JoinHorizontal(lipgloss.Top, content, pointer, avatar)
		return lipgloss.PlaceHorizontal(width, lipgloss.Right, row)
	}
	row := lipgloss.JoinHorizontal(lipgloss.Top, avatar, pointer, content)
	return lipgloss.PlaceHorizontal(width, lipgloss.Left, row)
}

func (b *Bubble) colors() (lipgloss.Color, lipgloss.Color) {
	if b.sent {
		return sentFg, sentBg
	}
	return receivedFg, receivedBg
}

func (b *Bubble) renderText(width int) string {
	w, h := b.ContentSize(width)
	inner := w - 2*padX
	lines := b.wrapText(width)
	for i, line := range lines {
		lines[i] = line + strings.Repeat(" ", max(inner-runewidth.StringWidth(line), 0))
	}
	for len(lines) < h-2*padY {
		lines = append(lines, strings.Repeat(" ", inner))
	}
	fg, bg := b.colors()
	return lipgloss.NewStyle().
		Foreground(fg).
		Background(bg).
		Padding(padY, padX).
		Render(strings.Join(lines, "\n"))
}

// renderPointer draws the triangle beside the first line of content.
func (b *Bubble) renderPointer() string {
	glyph := "◀"
	if b.sent {
		glyph = "▶"
	}
	_, bg := b.colors()
	blank := strings.Repeat(" ", PointerWidth)
	tip := lipgloss.NewStyle().Foreground(bg).Render(runewidth.FillRight(glyph, PointerWidth))
	return strings.Join([]string{blank, tip, blank}, "\n")
}

func (b *Bubble) renderAvatar() string {
	label := runewidth.Truncate(b.avatar.Label, AvatarWidth-2, "")
	return lipgloss.NewStyle().
		Width(AvatarWidth).
		Height(AvatarHeight).
		Align(lipgloss.Center).
		AlignVertical(lipgloss.Center).
		Foreground(b.avatar.Fg).
		Background(b.avatar.Bg).
		Render(label)
}
