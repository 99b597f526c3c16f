package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

var youtubeID = regexp.MustCompile(`(?:https?://)?(?:www\.)?(?:youtube\.com/(?:[^/\n\s]+/\S+/|(?:v|e(?:mbed)?)/|\S*?[?&]v=)|youtu\.be/)([a-zA-Z0-9_-]{11})`)

// YouTubeVideoID returns the 11 character video ID in raw, or "" if raw is
// not a YouTube URL.
func YouTubeVideoID(raw string) string {
	m := youtubeID.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	return m[1]
}

// FromURL fetches raw and returns its text. YouTube URLs yield the joined
// captions; any other URL yields the visible text of the page.
func (i *Ingester) FromURL(ctx context.Context, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &Error{Message: MsgEmptyURL}
	}
	if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
		return "", &Error{Message: MsgInvalidURL, Err: err}
	}

	videoID := YouTubeVideoID(raw)
	var (
		text string
		err  error
	)
	if videoID != "" {
		text, err = i.captions(ctx, videoID)
	} else {
		text, err = i.article(ctx, raw)
	}
	if err == nil {
		text = Normalize(text)
		if text == "" {
			if videoID != "" {
				err = errors.New(MsgEmptyCaptions)
			} else {
				err = errors.New(MsgEmptyArticle)
			}
		}
	}
	if err != nil {
		if errors.Is(err, errNoTranscript) {
			return "", &Error{Message: MsgNoTranscript, Err: err}
		}
		prefix := "Failed to process article URL"
		if videoID != "" {
			prefix = "Failed to process YouTube URL"
		}
		return "", &Error{
			Message: fmt.Sprintf("%s. %s. Please try again or paste the text directly.", prefix, strings.TrimSuffix(err.Error(), ".")),
			Err:     err,
		}
	}
	i.log.Info("ingest: url fetched", "url", raw, "youtube", videoID != "", "chars", len(text))
	return text, nil
}

var errNoTranscript = errors.New(MsgNoTranscript)

// caption is one entry of the transcript service response.
type caption struct {
	Text string `json:"text"`
}

func (i *Ingester) captions(ctx context.Context, videoID string) (string, error) {
	target := i.transcriptBase + "transcript?videoId=" + url.QueryEscape(videoID)
	status, body, err := i.get(ctx, target)
	if err != nil {
		return "", err
	}

	var serviceErr struct {
		Error string `json:"error"`
	}
	if status < 200 || status > 299 {
		if json.Unmarshal(body, &serviceErr) == nil && serviceErr.Error != "" {
			return "", errors.New(serviceErr.Error)
		}
		return "", fmt.Errorf("The transcript service failed. Status: %d.", status)
	}
	if json.Unmarshal(body, &serviceErr) == nil && serviceErr.Error != "" {
		return "", errors.New(serviceErr.Error)
	}

	var caps []caption
	if err := json.Unmarshal(body, &caps); err != nil || len(caps) == 0 {
		return "", errNoTranscript
	}
	parts := make([]string, len(caps))
	for n, c := range caps {
		parts[n] = c.Text
	}
	return strings.Join(parts, " "), nil
}

func (i *Ingester) article(ctx context.Context, target string) (string, error) {
	status, body, err := i.get(ctx, target)
	if err != nil {
		return "", err
	}
	if status < 200 || status > 299 {
		return "", fmt.Errorf("Network response was not ok: %s", http.StatusText(status))
	}
	return ExtractHTMLText(strings.NewReader(string(body)))
}

// get fetches target, through the proxy when configured, reading at most
// maxBytes of the body.
func (i *Ingester) get(ctx context.Context, target string) (int, []byte, error) {
	if i.proxy != "" {
		target = i.proxy + "?url=" + url.QueryEscape(target)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("ingest: build request: %w", err)
	}
	resp, err := i.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("ingest: fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, i.maxBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("ingest: read body: %w", err)
	}
	return resp.StatusCode, body, nil
}
