// Package notify turns errors from the resource layer into user-facing
// notices. It is the only place that maps taxonomy members to text.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/utafrali/freshcart/pkg/apierror"
)

const (
	MsgValidation = "Please check your input."
	MsgNetwork    = "No internet connection. Please try again."
	MsgAuth       = "Invalid credentials. Please try again."
	MsgUnknown    = "Something went wrong. Please try again."
)

// Level of a notice.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notice is one transient message for the user.
type Notice struct {
	Level  Level
	Text   string
	Fields map[string][]string
}

// Notifier shows notices.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// Message maps err to its user-facing text.
func Message(err error) string {
	switch apierror.KindOf(err) {
	case apierror.KindValidation:
		return MsgValidation
	case apierror.KindNetwork:
		return MsgNetwork
	case apierror.KindAuth:
		return MsgAuth
	case apierror.KindAPI:
		var apiErr *apierror.APIError
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			return apiErr.Message
		}
		return MsgUnknown
	default:
		return MsgUnknown
	}
}

// Handler is the centralized error handler.
type Handler struct {
	notifier Notifier
	logger   *slog.Logger
}

// NewHandler creates a handler that reports to notifier.
func NewHandler(notifier Notifier, logger *slog.Logger) *Handler {
	return &Handler{notifier: notifier, logger: logger}
}

// Handle logs err and shows the matching notice. A nil err is ignored.
func (h *Handler) Handle(ctx context.Context, err error) {
	if err == nil {
		return
	}

	kind := apierror.KindOf(err)
	attrs := []any{
		slog.String("kind", kind.String()),
		slog.String("error", err.Error()),
	}
	if status := apierror.StatusOf(err); status != 0 {
		attrs = append(attrs, slog.Int("status", status))
	}
	if kind == apierror.KindUnknown {
		h.logger.ErrorContext(ctx, "unexpected error", attrs...)
	} else {
		h.logger.WarnContext(ctx, "request failed", attrs...)
	}

	n := Notice{Level: LevelError, Text: Message(err)}
	var valErr *apierror.ValidationError
	if errors.As(err, &valErr) && len(valErr.Fields) > 0 {
		n.Fields = valErr.Fields
	}
	h.notifier.Notify(ctx, n)
}

// Info shows an informational notice.
func (h *Handler) Info(ctx context.Context, text string) {
	h.notifier.Notify(ctx, Notice{Level: LevelInfo, Text: text})
}

// WriterNotifier prints notices as lines to w.
type WriterNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterNotifier creates a notifier printing to w.
func NewWriterNotifier(w io.Writer) *WriterNotifier {
	return &WriterNotifier{w: w}
}

// Notify prints n, with field details indented below it.
func (p *WriterNotifier) Notify(_ context.Context, n Notice) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prefix := "✓"
	if n.Level == LevelError {
		prefix = "✗"
	}
	fmt.Fprintf(p.w, "%s %s\n", prefix, n.Text)

	names := make([]string, 0, len(n.Fields))
	for name := range n.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(p.w, "    %s: %s\n", name, strings.Join(n.Fields[name], ", "))
	}
}
