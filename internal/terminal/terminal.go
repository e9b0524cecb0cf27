package terminal

import (
	"errors"
	"strings"
	"unicode/utf8"

	rl "github.com/gen2brain/raylib-go/raylib"

	"world-builder/internal/commands"
	"world-builder/internal/logger"
)

const (
	BarHeight = 40
	// When windowed, move bar up by this many pixels so it stays visible (avoids being cut off by taskbar/window bounds).
	WindowedBarOffset = 56
	prompt            = "> "
	fontSize          = 20
	padding           = 8
	// Number of log lines drawn above the input bar when the console is open.
	maxLinesOnScreen = 14
	lineHeight       = fontSize + 4
	maxLineChars     = 200
)

var (
	termBarColor    = rl.NewColor(40, 40, 40, 255)
	termLineColor   = rl.NewColor(80, 80, 80, 255)
	termChatBgColor = rl.NewColor(24, 24, 24, 240)
)

// Terminal is the console bar at the bottom of the screen, toggled with ESC.
// Submitted lines are queued by Update and executed later with Submit, so the engine
// decides when commands run relative to the frame.
type Terminal struct {
	log      *logger.Logger
	reg      *commands.Registry
	inputBuf string
	open     bool
	history  []string
	histPos  int
}

// New returns a closed Terminal that logs to log and runs "cmd ..." lines through reg.
func New(log *logger.Logger, reg *commands.Registry) *Terminal {
	return &Terminal{log: log, reg: reg}
}

// IsOpen returns true when the console is visible and capturing keyboard input.
func (t *Terminal) IsOpen() bool {
	return t.open
}

// SetOpen shows or hides the console.
func (t *Terminal) SetOpen(open bool) {
	t.open = open
}

// Update handles ESC (toggle), and when open: typing, paste, backspace, history and enter.
// It returns the lines submitted this frame. Call once per frame.
func (t *Terminal) Update() []string {
	if rl.IsKeyPressed(rl.KeyEscape) {
		t.open = !t.open
	}
	if !t.open {
		return nil
	}
	// Paste: Ctrl+V (Windows/Linux) or Cmd+V (macOS)
	if rl.IsKeyPressed(rl.KeyV) && (rl.IsKeyDown(rl.KeyLeftControl) || rl.IsKeyDown(rl.KeyRightControl) || rl.IsKeyDown(rl.KeyLeftSuper) || rl.IsKeyDown(rl.KeyRightSuper)) {
		t.Type(rl.GetClipboardText())
	} else {
		for {
			c := rl.GetCharPressed()
			if c == 0 {
				break
			}
			t.Type(string(rune(c)))
		}
	}
	if rl.IsKeyPressed(rl.KeyBackspace) {
		t.Backspace()
	}
	if rl.IsKeyPressed(rl.KeyUp) {
		t.Recall(-1)
	}
	if rl.IsKeyPressed(rl.KeyDown) {
		t.Recall(1)
	}
	if rl.IsKeyPressed(rl.KeyEnter) || rl.IsKeyPressed(rl.KeyKpEnter) {
		if line, ok := t.Enter(); ok {
			return []string{line}
		}
	}
	return nil
}

// Type appends s to the input line.
func (t *Terminal) Type(s string) {
	t.inputBuf += s
}

// Backspace removes the last rune of the input line.
func (t *Terminal) Backspace() {
	if t.inputBuf == "" {
		return
	}
	_, size := utf8.DecodeLastRuneInString(t.inputBuf)
	t.inputBuf = t.inputBuf[:len(t.inputBuf)-size]
}

// Input returns the current input line.
func (t *Terminal) Input() string {
	return t.inputBuf
}

// Enter takes the input line for submission and records it in history.
func (t *Terminal) Enter() (string, bool) {
	line := strings.TrimSpace(t.inputBuf)
	t.inputBuf = ""
	if line == "" {
		return "", false
	}
	t.history = append(t.history, line)
	t.histPos = len(t.history)
	return line, true
}

// Recall steps through submitted lines; -1 is older, 1 is newer.
func (t *Terminal) Recall(step int) {
	if len(t.history) == 0 {
		return
	}
	t.histPos += step
	if t.histPos < 0 {
		t.histPos = 0
	}
	if t.histPos >= len(t.history) {
		t.histPos = len(t.history)
		t.inputBuf = ""
		return
	}
	t.inputBuf = t.history[t.histPos]
}

// Submit logs line and executes it when it is a command. Errors are logged, not returned.
func (t *Terminal) Submit(line string) {
	t.log.Log(prompt + line)
	err := t.reg.Run(line)
	switch {
	case err == nil:
	case errors.Is(err, commands.ErrNotCommand):
		t.log.Log("commands start with \"cmd \"; try cmd help")
	default:
		t.log.Log(err.Error())
	}
}

// Draw draws the terminal bar at the bottom when open, and the recent log lines above it.
// Uses GetScreenWidth/GetScreenHeight so the bar matches the 2D overlay coordinate system (correct in fullscreen).
func (t *Terminal) Draw() {
	if !t.open {
		return
	}
	screenW := int(rl.GetScreenWidth())
	screenH := int(rl.GetScreenHeight())
	barY := screenH - BarHeight
	if !rl.IsWindowFullscreen() {
		barY -= WindowedBarOffset
	}

	chatHeight := maxLinesOnScreen * lineHeight
	chatY := barY - chatHeight
	if chatY < 0 {
		chatHeight = barY
		chatY = 0
	}
	if chatHeight > 0 {
		rl.DrawRectangle(0, int32(chatY), int32(screenW), int32(chatHeight), termChatBgColor)
	}
	lines := t.log.Lines()
	start := 0
	if len(lines) > maxLinesOnScreen {
		start = len(lines) - maxLinesOnScreen
	}
	for i := start; i < len(lines); i++ {
		y := chatY + (i-start)*lineHeight + padding
		rl.DrawText(clip(lines[i]), int32(padding), int32(y), int32(fontSize), rl.LightGray)
	}

	rl.DrawRectangle(0, int32(barY), int32(screenW), int32(BarHeight), termBarColor)
	rl.DrawRectangle(0, int32(barY), int32(screenW), 1, termLineColor)
	rl.DrawText(prompt+t.inputBuf+"|", int32(padding), int32(barY+padding), int32(fontSize), rl.White)
}

func clip(line string) string {
	if len(line) > maxLineChars {
		return line[:maxLineChars-3] + "..."
	}
	return line
}
