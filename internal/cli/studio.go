package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/apresai/pdfcast/internal/backend"
	"github.com/apresai/pdfcast/internal/ingest"
	"github.com/apresai/pdfcast/internal/observability"
	"github.com/apresai/pdfcast/internal/pipeline"
	"github.com/apresai/pdfcast/internal/progress"
	"github.com/apresai/pdfcast/internal/script"
)

const toastDuration = 3 * time.Second

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))

	headerBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("#7D56F4")).
			MarginBottom(1)

	stepDoneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	stepActiveStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#555555"))

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#626262")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Bold(true)

	teacherStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	studentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575")).
			Bold(true)

	buttonStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 2)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			MarginTop(1)
)

// Messages delivered to the model from controller callbacks and commands.
type (
	progressMsg  progress.Event
	noticeMsg    pipeline.Notice
	stateMsg     struct{ state pipeline.State }
	toastDoneMsg struct{ seq int }
	opDoneMsg    struct {
		stage string
		err   error
	}
)

// languageChoice is read by the controller from its own goroutine while the
// UI changes it.
type languageChoice struct {
	mu   sync.Mutex
	lang script.Language
}

func (l *languageChoice) Get() script.Language {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lang
}

func (l *languageChoice) Cycle() script.Language {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lang = l.lang.Next()
	return l.lang
}

// relay forwards callbacks into the running program. Send is a no-op once
// the program has exited.
type relay struct {
	p *tea.Program
}

func (r *relay) send(msg tea.Msg) {
	if r.p != nil {
		r.p.Send(msg)
	}
}

type studioModel struct {
	ctx     context.Context
	ctrl    *pipeline.Controller
	lang    *languageChoice
	saveDir string
	log     *slog.Logger

	state    pipeline.State
	loading  progress.Event
	toast    *pipeline.Notice
	toastSeq int

	choosing bool
	path     string
	scroll   int
	width    int
	height   int
}

func newStudioModel(ctx context.Context, ctrl *pipeline.Controller, lang *languageChoice, saveDir string, logger *slog.Logger) studioModel {
	return studioModel{
		ctx:     ctx,
		ctrl:    ctrl,
		lang:    lang,
		saveDir: saveDir,
		log:     logger,
		state:   ctrl.State(),
		width:   80,
		height:  24,
	}
}

func (m studioModel) Init() tea.Cmd {
	return nil
}

func (m studioModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case progressMsg:
		m.loading = progress.Event(msg)
		return m, nil

	case stateMsg:
		m.state = msg.state
		m.scroll = 0
		return m, nil

	case noticeMsg:
		n := pipeline.Notice(msg)
		m.toast = &n
		m.toastSeq++
		seq := m.toastSeq
		return m, tea.Tick(toastDuration, func(time.Time) tea.Msg { return toastDoneMsg{seq: seq} })

	case toastDoneMsg:
		if msg.seq == m.toastSeq {
			m.toast = nil
		}
		return m, nil

	case opDoneMsg:
		if msg.err != nil && !errors.Is(msg.err, pipeline.ErrSuperseded) {
			m.log.Warn("Studio action failed", "action", msg.stage, "error", msg.err)
		}
		return m, nil

	case tea.KeyMsg:
		if m.choosing {
			return m.updateChoosing(msg)
		}
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m studioModel) updateChoosing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.choosing = false
		return m, nil
	case "enter":
		m.choosing = false
		path := strings.TrimSpace(m.path)
		if path == "" {
			return m, nil
		}
		return m, m.selectDocument(path)
	case "backspace":
		if len(m.path) > 0 {
			runes := []rune(m.path)
			m.path = string(runes[:len(runes)-1])
		}
		return m, nil
	case "ctrl+u":
		m.path = ""
		return m, nil
	default:
		if msg.Type == tea.KeyRunes {
			m.path += string(msg.Runes)
		}
		return m, nil
	}
}

// updateKeys dispatches action keys. An action is only reachable when its
// panel is visible and nothing is in flight; reset stays available while a
// stage runs.
func (m studioModel) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "l":
		m.lang.Cycle()
		return m, nil
	}

	p := pipeline.PanelsFor(m.state)
	if key == "r" && p.ResetAction {
		// Reset delivers callbacks through the program, so it must not run
		// on the event loop.
		ctrl := m.ctrl
		return m, m.run("reset", func(context.Context) error {
			ctrl.Reset()
			return nil
		})
	}
	if m.loading.Active {
		return m, nil
	}

	switch key {
	case "o":
		if p.UploadZone || p.UploadAction {
			m.choosing = true
			m.path = ""
		}
	case "x":
		if p.UploadAction {
			return m, m.run("remove", func(context.Context) error { return m.ctrl.RemoveDocument() })
		}
	case "u":
		if p.UploadAction {
			return m, m.run("upload", m.ctrl.Upload)
		}
	case "g":
		if p.ScriptAction {
			return m, m.run("script", m.ctrl.GenerateScript)
		}
	case "a":
		if p.AudioAction {
			return m, m.run("audio", m.ctrl.GenerateAudio)
		}
	case "p":
		if p.Audio {
			return m, m.play()
		}
	case "d":
		if p.DownloadAudio {
			return m, m.download()
		}
	case "up", "k":
		if m.scroll > 0 {
			m.scroll--
		}
	case "down", "j":
		if p.Script {
			m.scroll++
		}
	}
	return m, nil
}

func (m studioModel) run(name string, fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{stage: name, err: fn(ctx)}
	}
}

func (m studioModel) selectDocument(path string) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		doc, err := ingest.Open(path)
		if err != nil {
			return noticeMsg{Level: pipeline.NoticeError, Message: err.Error()}
		}
		if err := ctrl.SelectDocument(doc); err != nil {
			return opDoneMsg{stage: "select", err: err}
		}
		return nil
	}
}

func (m studioModel) download() tea.Cmd {
	ctx, ctrl, dir := m.ctx, m.ctrl, m.saveDir
	return func() tea.Msg {
		media, err := ctrl.Download(ctx)
		if err != nil {
			return opDoneMsg{stage: "download", err: err}
		}
		path, err := saveMedia(media, dir)
		if err != nil {
			return noticeMsg{Level: pipeline.NoticeError, Message: err.Error()}
		}
		return noticeMsg{Level: pipeline.NoticeInfo, Message: "Saved to " + path}
	}
}

// play streams the audio to a temp file and hands it to ffplay when it is
// installed.
func (m studioModel) play() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		media, err := ctrl.Stream(ctx)
		if err != nil {
			return noticeMsg{Level: pipeline.NoticeError, Message: "Playback failed"}
		}
		path, err := saveMedia(media, filepath.Join(os.TempDir(), "pdfcast"))
		if err != nil {
			return noticeMsg{Level: pipeline.NoticeError, Message: err.Error()}
		}
		if _, err := exec.LookPath("ffplay"); err != nil {
			return noticeMsg{Level: pipeline.NoticeInfo, Message: "Audio saved to " + path}
		}
		cmd := exec.CommandContext(ctx, "ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet", path)
		if err := cmd.Start(); err != nil {
			return noticeMsg{Level: pipeline.NoticeError, Message: "Playback failed"}
		}
		go cmd.Wait()
		return noticeMsg{Level: pipeline.NoticeInfo, Message: "Playing " + media.Name}
	}
}

func (m studioModel) View() string {
	var b strings.Builder

	header := titleStyle.Render("pdfcast") + dimStyle.Render("  Language: "+m.lang.Get().Name())
	b.WriteString(headerBorder.Render(header))
	b.WriteString("\n")
	b.WriteString(renderSteps(pipeline.Steps(m.state)))
	b.WriteString("\n\n")

	if m.loading.Active {
		b.WriteString(m.renderLoading())
	} else {
		b.WriteString(m.renderPanels())
	}

	if m.toast != nil {
		b.WriteString("\n" + renderNotice(*m.toast) + "\n")
	}
	b.WriteString(helpStyle.Render(m.help()))
	b.WriteString("\n")
	return b.String()
}

func (m studioModel) renderPanels() string {
	var b strings.Builder
	p := pipeline.PanelsFor(m.state)
	snap := pipeline.Describe(m.state)
	width := m.contentWidth()

	if p.UploadZone {
		body := "Select a PDF to begin\n" + dimStyle.Render("press o to choose a file")
		if m.choosing {
			body = "Path: " + m.path + "_"
		}
		b.WriteString(panelStyle.Width(width).Render(body) + "\n")
	}
	if p.FileInfo && snap.Document != nil {
		line := labelStyle.Render("File ") + snap.Document.Name + dimStyle.Render("  "+ingest.FormatSize(snap.Document.Size()))
		if m.choosing {
			line = "Path: " + m.path + "_"
		}
		b.WriteString(line + "\n")
	}
	if p.UploadAction {
		b.WriteString("\n" + buttonStyle.Render("Upload (u)") + dimStyle.Render("  x remove  o choose another") + "\n")
	}
	if p.Preview {
		b.WriteString("\n" + labelStyle.Render("Preview") + "\n")
		b.WriteString(panelStyle.Width(width).Render(snap.Preview) + "\n")
	}
	if p.ScriptAction {
		b.WriteString("\n" + buttonStyle.Render("Generate Script (g)") + "\n")
	}
	if p.Script && snap.Script != nil {
		b.WriteString("\n" + m.renderScript(snap.Script, width) + "\n")
	}
	if p.AudioAction {
		b.WriteString("\n" + buttonStyle.Render("Generate Audio (a)") + "\n")
	}
	if p.Audio {
		b.WriteString("\n" + successStyle.Render("Podcast ready: ") + backend.DisplayName(string(snap.Audio)) + "\n")
	}
	if p.DownloadAudio {
		b.WriteString(buttonStyle.Render("Play (p)") + " " + buttonStyle.Render("Download (d)") + "\n")
	}
	return b.String()
}

// renderScript shows a window of the conversation starting at the scroll
// offset.
func (m studioModel) renderScript(sc *script.Script, width int) string {
	var lines []string
	for _, turn := range sc.Turns {
		lines = append(lines, speakerStyle(turn.Speaker).Render(speakerLabel(turn.Speaker)+":")+" "+turn.Text)
	}
	visible := m.height - 16
	if visible < 4 {
		visible = 4
	}
	start := m.scroll
	if start > len(lines)-1 {
		start = max(len(lines)-1, 0)
	}
	end := min(start+visible, len(lines))

	var b strings.Builder
	b.WriteString(labelStyle.Render(sc.DisplayTitle()) + "\n")
	if sc.Summary != "" {
		b.WriteString(dimStyle.Render(sc.Summary) + "\n")
	}
	b.WriteString("\n" + strings.Join(lines[start:end], "\n"))
	if end < len(lines) {
		b.WriteString("\n" + dimStyle.Render(fmt.Sprintf("... %d more (j/k to scroll)", len(lines)-end)))
	}
	return panelStyle.Width(width).Render(b.String())
}

func (m studioModel) renderLoading() string {
	e := m.loading
	body := labelStyle.Render(e.Title) + "\n" +
		dimStyle.Render(e.Message) + "\n\n" +
		progress.RenderBar(e.Percent, max(m.contentWidth()-12, 10)) + fmt.Sprintf(" %3d%%", int(e.Percent))
	return panelStyle.Width(m.contentWidth()).Render(body) + "\n" + dimStyle.Render("r to cancel and start over") + "\n"
}

func (m studioModel) help() string {
	if m.choosing {
		return "  type a path | enter to confirm | esc to cancel | ctrl+u to clear"
	}
	p := pipeline.PanelsFor(m.state)
	parts := []string{"l language"}
	if p.Script {
		parts = append(parts, "j/k scroll")
	}
	if p.ResetAction {
		parts = append(parts, "r start over")
	}
	parts = append(parts, "q quit")
	return "  " + strings.Join(parts, " | ")
}

func (m studioModel) contentWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

func renderSteps(steps []pipeline.Step) string {
	parts := make([]string, len(steps))
	for i, st := range steps {
		switch st.Status {
		case pipeline.StepCompleted:
			parts[i] = stepDoneStyle.Render("✓ " + st.Label)
		case pipeline.StepActive:
			parts[i] = stepActiveStyle.Render("● " + st.Label)
		default:
			parts[i] = dimStyle.Render("○ " + st.Label)
		}
	}
	return strings.Join(parts, dimStyle.Render(" ─ "))
}

func renderNotice(n pipeline.Notice) string {
	switch n.Level {
	case pipeline.NoticeSuccess:
		return successStyle.Render("✓ " + n.Message)
	case pipeline.NoticeError:
		return errorStyle.Render("✗ " + n.Message)
	default:
		return n.Message
	}
}

// speakerLabel is how a role is shown in the script panel.
func speakerLabel(r script.Role) string {
	switch r {
	case script.RoleTeacher:
		return "Teacher"
	case script.RoleStudent:
		return "Student"
	default:
		return string(r)
	}
}

func speakerStyle(r script.Role) lipgloss.Style {
	if r == script.RoleStudent {
		return studentStyle
	}
	return teacherStyle
}

// newStudioController wires controller callbacks into the program behind r.
// Every controller call that can fire them runs off the event loop.
func newStudioController(ctx context.Context, b pipeline.Backend, lang *languageChoice, r *relay, logger *slog.Logger) *pipeline.Controller {
	return pipeline.NewController(ctx, b, pipeline.Options{
		Language:   lang.Get,
		OnProgress: func(e progress.Event) { r.send(progressMsg(e)) },
		OnNotice:   func(n pipeline.Notice) { r.send(noticeMsg(n)) },
		OnChange:   func(s pipeline.State) { r.send(stateMsg{state: s}) },
		Logger:     logger,
	})
}

func runStudio(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	logFile, err := os.OpenFile(cfg.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	logger := observability.InitLogger(logFile, cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	shutdown, err := observability.InitTracer(ctx, "pdfcast", Version, "studio")
	if err != nil {
		return err
	}
	defer shutdown(context.Background())

	b, closeBackend, err := openBackend(ctx, cfg, flagLocal, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	lang := &languageChoice{lang: cfg.Language}
	r := &relay{}
	ctrl := newStudioController(ctx, b, lang, r, logger)
	logger.Info("Studio started", "session_id", ctrl.SessionID(), "server", cfg.ServerURL, "local", flagLocal)

	saveDir, err := os.Getwd()
	if err != nil {
		saveDir = cfg.DataDir
	}
	p := tea.NewProgram(newStudioModel(ctx, ctrl, lang, saveDir, logger), tea.WithAltScreen(), tea.WithContext(ctx))
	r.p = p
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
