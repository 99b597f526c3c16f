// Package ingest turns pasted text, local files and URLs into plain text
// ready for study guide generation.
//
// Every error returned by an [Ingester] is an [*Error] whose message is fit
// for display.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// User-facing messages.
const (
	MsgEmptyText     = "Please provide some content to generate study materials from."
	MsgUnsupported   = "Unsupported file type. Please upload a PDF, TXT, DOCX, or PPTX file."
	MsgReadFile      = "Failed to read the file."
	MsgEmptyURL      = "Please enter a URL."
	MsgInvalidURL    = "Please enter a valid URL."
	MsgNoTranscript  = "This video does not have a transcript available. This can happen with music videos or videos without spoken words. Please try a different video."
	MsgEmptyCaptions = "The extracted transcript was empty."
	MsgEmptyArticle  = "Could not extract any text from the provided URL."
)

// Default endpoints.
const (
	DefaultTranscriptService = "https://youtube-transcript-api.vercel.app/api/"
	DefaultMaxBytes          = 20 << 20
)

// ErrUnsupportedType is wrapped by errors for files without an extractor.
var ErrUnsupportedType = errors.New("ingest: unsupported file type")

// Error is an ingestion failure. Message is shown to the user; Err keeps the
// cause.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Extractor pulls plain text out of a document.
type Extractor interface {
	Extract(ctx context.Context, r io.Reader) (string, error)
}

// ExtractorFunc adapts a function to [Extractor].
type ExtractorFunc func(ctx context.Context, r io.Reader) (string, error)

// Extract implements [Extractor].
func (f ExtractorFunc) Extract(ctx context.Context, r io.Reader) (string, error) { return f(ctx, r) }

// plainText reads r as UTF-8 text.
var plainText = ExtractorFunc(func(_ context.Context, r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
})

// Option configures an [Ingester].
type Option func(*Ingester)

// WithHTTPClient sets the client used for URL fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(i *Ingester) { i.client = c }
}

// WithTranscriptService sets the base URL of the caption service. The video
// ID is requested as <base>transcript?videoId=<id>.
func WithTranscriptService(base string) Option {
	return func(i *Ingester) { i.transcriptBase = base }
}

// WithProxy routes every fetch through a raw pass-through proxy as
// <proxy>?url=<escaped target>.
func WithProxy(proxy string) Option {
	return func(i *Ingester) { i.proxy = proxy }
}

// WithMaxBytes caps how much is read from a file or response.
func WithMaxBytes(n int64) Option {
	return func(i *Ingester) { i.maxBytes = n }
}

// WithExtractor registers ext (e.g. ".pdf") with e.
func WithExtractor(ext string, e Extractor) Option {
	return func(i *Ingester) { i.extractors[strings.ToLower(ext)] = e }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Ingester) { i.log = l }
}

// Ingester converts user input into plain text.
type Ingester struct {
	client         *http.Client
	transcriptBase string
	proxy          string
	maxBytes       int64
	extractors     map[string]Extractor
	log            *slog.Logger
}

// New returns an Ingester that handles .txt and .md files natively.
func New(opts ...Option) *Ingester {
	i := &Ingester{
		client:         &http.Client{Timeout: 30 * time.Second},
		transcriptBase: DefaultTranscriptService,
		maxBytes:       DefaultMaxBytes,
		extractors: map[string]Extractor{
			".txt": plainText,
			".md":  plainText,
		},
	}
	for _, o := range opts {
		o(i)
	}
	if i.log == nil {
		i.log = slog.Default()
	}
	return i
}

// FromText validates pasted text.
func (i *Ingester) FromText(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", &Error{Message: MsgEmptyText}
	}
	return text, nil
}

// FromFile extracts the text of the file at path, choosing an extractor by
// extension.
func (i *Ingester) FromFile(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	ex, ok := i.extractors[ext]
	if !ok {
		return "", &Error{Message: MsgUnsupported, Err: fmt.Errorf("%w: %q", ErrUnsupportedType, ext)}
	}

	f, err := os.Open(path)
	if err != nil {
		return "", &Error{Message: MsgReadFile, Err: fmt.Errorf("ingest: open: %w", err)}
	}
	defer f.Close()

	text, err := ex.Extract(ctx, io.LimitReader(f, i.maxBytes))
	if err != nil {
		return "", &Error{Message: parseFailure(ext), Err: fmt.Errorf("ingest: extract %s: %w", ext, err)}
	}
	if strings.TrimSpace(text) == "" {
		return "", &Error{Message: MsgEmptyText}
	}
	i.log.Debug("ingest: file extracted", "path", path, "chars", len(text))
	return text, nil
}

func parseFailure(ext string) string {
	kind := strings.ToUpper(strings.TrimPrefix(ext, "."))
	switch ext {
	case ".pdf":
		return "Failed to parse PDF file. It might be corrupted or protected."
	case ".txt", ".md":
		return MsgReadFile
	}
	return fmt.Sprintf("Failed to parse %s file. It might be corrupted.", kind)
}

var whitespaceRun = regexp.MustCompile(`\s\s+`)

// Normalize collapses every run of two or more whitespace characters into a
// single space and trims the result.
func Normalize(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}
