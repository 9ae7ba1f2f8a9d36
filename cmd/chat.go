package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/KaramelBytes/docqa-cli/internal/pdf"
	"github.com/KaramelBytes/docqa-cli/internal/session"
	"github.com/KaramelBytes/docqa-cli/internal/ui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var chatDocID string

const chatHelp = `Type a question and press Enter. End a line with \ to continue on the next line.
  /docs            list documents
  /select <n|id>   switch to a document by number or id
  /attach <path>   choose a PDF to upload
  /upload          upload the attached PDF
  /history         show the whole conversation
  /help            show this help
  /quit            leave`

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Hold an interactive conversation about a document",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r := &turnRenderer{}
		a, err := newApp(cmd, r.render)
		if err != nil {
			return err
		}
		defer a.close()
		r.console = a.console

		ctx := cmd.Context()
		// A failed list load is shown through the error slot; uploads still work.
		if err := a.session.StartWith(ctx, chatDocID); errors.Is(err, session.ErrUnknownDocument) {
			a.console.Error(fmt.Sprintf("Document %s is not listed by the service.", chatDocID))
		}
		if doc, ok := a.session.ActiveDocument(); ok {
			a.console.Info("Chatting about %s. Type /help for commands.", doc.Filename)
		} else {
			a.console.Info("No document selected. Use /select or /attach and /upload. Type /help for commands.")
		}

		c := &chatLoop{app: a, out: cmd.OutOrStdout()}
		return c.run(ctx, cmd.InOrStdin())
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatDocID, "doc", "", "document id to start with (default: last uploaded)")
}

type chatLoop struct {
	app    *app
	out    io.Writer
	staged *pdf.File
}

func (c *chatLoop) run(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var lines []string
	c.prompt(false)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasSuffix(line, `\`) {
			lines = append(lines, strings.TrimSuffix(line, `\`))
			c.prompt(true)
			continue
		}
		lines = append(lines, line)
		text := strings.Join(lines, "\n")
		lines = nil

		if ctx.Err() != nil {
			return nil
		}
		if quit := c.handle(ctx, text); quit {
			return nil
		}
		c.prompt(false)
	}
	return sc.Err()
}

func (c *chatLoop) prompt(continuation bool) {
	if continuation {
		fmt.Fprint(c.out, ". ")
		return
	}
	fmt.Fprint(c.out, "> ")
}

// handle runs one submitted entry and reports whether the loop should end.
func (c *chatLoop) handle(ctx context.Context, text string) bool {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		c.ask(ctx, text)
		return false
	}
	name, arg, _ := strings.Cut(trimmed, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(c.out, chatHelp)
	case "/docs":
		snap := c.app.session.Snapshot()
		c.app.console.Documents(snap.Documents, snap.ActiveDocumentID)
	case "/select":
		c.selectDocument(ctx, arg)
	case "/attach":
		c.attach(arg)
	case "/upload":
		c.upload(ctx)
	case "/history":
		c.app.console.Turns(c.app.session.Turns())
	default:
		c.app.console.Info("Unknown command %s. Type /help.", name)
	}
	return false
}

func (c *chatLoop) ask(ctx context.Context, text string) {
	_, err := c.app.session.SubmitQuestion(ctx, text)
	switch {
	case err == nil, errors.Is(err, session.ErrEmptyQuestion), errors.Is(err, session.ErrTurnDiscarded):
	case errors.Is(err, session.ErrNoActiveDocument):
		c.app.console.Error("No document selected. Use /select or /attach and /upload first.")
	case errors.Is(err, session.ErrQuestionPending):
		c.app.console.Info("Still waiting for the previous answer.")
	default:
		// shown through the error slot
		c.app.log.Debug("ask failed", zap.Error(err))
	}
}

func (c *chatLoop) selectDocument(ctx context.Context, arg string) {
	if arg == "" {
		c.app.console.Info("Usage: /select <n|id>")
		return
	}
	id := arg
	docs := c.app.session.Documents()
	if n, err := strconv.Atoi(arg); err == nil && n >= 1 && n <= len(docs) {
		id = docs[n-1].ID
	}
	err := c.app.session.SelectDocument(ctx, id)
	if errors.Is(err, session.ErrUnknownDocument) {
		c.app.console.Error(fmt.Sprintf("No document %s. Use /docs to list them.", arg))
		return
	}
	if err != nil {
		return
	}
	if doc, ok := c.app.session.ActiveDocument(); ok {
		c.app.console.Success("Selected %s", doc.Filename)
		if len(c.app.session.Turns()) == 0 {
			c.app.console.Turns(nil)
		}
	}
}

func (c *chatLoop) attach(path string) {
	if path == "" {
		c.app.console.Info("Usage: /attach <path>")
		return
	}
	f, err := pdf.Open(path)
	if err != nil {
		c.staged = nil
		c.app.log.Debug("attach rejected", zap.String("path", path), zap.Error(err))
		c.app.console.Error(pdf.InvalidFileMessage)
		return
	}
	c.staged = f
	c.app.console.Info("Attached %s. Type /upload to send it.", f.Name)
}

func (c *chatLoop) upload(ctx context.Context) {
	f := c.staged
	if f == nil {
		c.app.console.Info("Nothing attached. Use /attach <path> first.")
		return
	}
	// Discarded whatever the outcome.
	c.staged = nil
	doc, err := c.app.session.UploadDocument(ctx, f.Name, f.Data)
	if err != nil {
		return
	}
	c.app.console.Success("Document uploaded: %s [%s]", doc.Filename, doc.ID)
}

// turnRenderer prints the latest turn whenever the turn list grows or its
// pending turn resolves, and the error slot whenever it changes.
type turnRenderer struct {
	console *ui.Console

	mu      sync.Mutex
	docID   string
	count   int
	pending bool
	errMsg  string
}

func (r *turnRenderer) render(s session.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.console == nil {
		return
	}
	if s.Error != r.errMsg {
		r.errMsg = s.Error
		r.console.Error(s.Error)
	}

	n := len(s.Turns)
	pending := n > 0 && s.Turns[n-1].Pending
	switched := s.ActiveDocumentID != r.docID
	grew := n > r.count
	resolved := n == r.count && r.pending && !pending
	r.docID, r.count, r.pending = s.ActiveDocumentID, n, pending

	if n > 0 && (switched || grew || resolved) {
		r.console.Turn(s.Turns[n-1])
	}
}
