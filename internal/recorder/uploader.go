package recorder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"segment-recorder/internal/platform/metrics"
)

// Upload form field names.
const (
	fieldHash    = "hash"
	fieldHash2   = "hash2"
	fieldTitle   = "title"
	fieldComment = "comment"
	fieldVideo   = "video_file"

	videoContentType = "video/mp4"
)

// maxUploadResponse caps how much of an upload response is kept for logging.
const maxUploadResponse = 64 << 10

// UploadResult describes a finished upload attempt that did not fail at the
// transport level.
type UploadResult struct {
	// Skipped is true when no destination was configured. No request was
	// made and the file was kept.
	Skipped  bool
	Endpoint string
	Status   int
	Response string
	// DeleteErr wraps ErrDelete when the local file could not be removed
	// after the upload. The upload itself still counts as done.
	DeleteErr error
}

// Uploader sends a finished segment to its remote destination.
type Uploader interface {
	Upload(ctx context.Context, path string, p Policy) (UploadResult, error)
}

// HTTPUploader posts segments as multipart/form-data.
type HTTPUploader struct {
	override string
	cli      *http.Client
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// NewHTTPUploader returns an uploader. A non-empty override replaces every
// policy's upload URL. Metrics may be nil.
func NewHTTPUploader(override string, timeout time.Duration, log *slog.Logger, m *metrics.Metrics) *HTTPUploader {
	return &HTTPUploader{
		override: override,
		cli:      &http.Client{Timeout: timeout},
		log:      log.With("component", "uploader"),
		metrics:  m,
	}
}

// Destination returns the URL a segment recorded under p is posted to, or ""
// when it should not be uploaded.
func (u *HTTPUploader) Destination(p Policy) string {
	if u.override != "" {
		return u.override
	}
	return p.UploadURL
}

// Upload implements Uploader. Any HTTP response, whatever its status, counts
// as delivered and the local file is removed. Transport errors wrap
// ErrUpload and leave the file in place.
func (u *HTTPUploader) Upload(ctx context.Context, path string, p Policy) (UploadResult, error) {
	dest := u.Destination(p)
	if dest == "" {
		u.log.Info("no upload destination, keeping file", slog.String("file", path))
		return UploadResult{Skipped: true}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return UploadResult{Endpoint: dest}, fmt.Errorf("%w: %w", ErrUpload, err)
	}
	var size int64
	if st, err := f.Stat(); err != nil {
		u.log.Debug("segment size unknown", slog.String("file", filepath.Base(path)), slog.String("error", err.Error()))
	} else {
		size = st.Size()
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer f.Close()
		pw.CloseWithError(writeUploadForm(mw, f, p))
	}()
	// Unblocks the form writer if the request ends before the body is drained.
	finish := func() {
		pr.Close()
		<-done
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dest, pr)
	if err != nil {
		finish()
		return UploadResult{Endpoint: dest}, fmt.Errorf("%w: %w", ErrUpload, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if p.Referer != "" {
		req.Header.Set("Referer", p.Referer)
	}

	u.log.Info("uploading segment",
		slog.String("file", filepath.Base(path)),
		slog.String("endpoint", dest),
		slog.Int64("bytes", size))

	started := time.Now()
	resp, err := u.cli.Do(req)
	if err != nil {
		finish()
		return UploadResult{Endpoint: dest}, fmt.Errorf("%w: %w", ErrUpload, err)
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxUploadResponse))
	resp.Body.Close()
	finish()
	u.metrics.ObserveUpload(time.Since(started).Seconds(), size)

	res := UploadResult{
		Endpoint: dest,
		Status:   resp.StatusCode,
		Response: string(body),
	}
	u.log.Info("upload response",
		slog.String("file", filepath.Base(path)),
		slog.Int("status", resp.StatusCode),
		slog.String("body", res.Response))

	if err := os.Remove(path); err != nil {
		res.DeleteErr = fmt.Errorf("%w: %w", ErrDelete, err)
		u.log.Warn("could not delete uploaded file", slog.String("file", path), slog.String("error", err.Error()))
	}
	return res, nil
}

func writeUploadForm(mw *multipart.Writer, f *os.File, p Policy) error {
	title := p.Title
	if title == "" {
		title = filepath.Base(f.Name())
	}
	fields := [][2]string{
		{fieldHash, p.Hash},
		{fieldHash2, p.Hash2},
		{fieldTitle, title},
	}
	if p.Comment != "" {
		fields = append(fields, [2]string{fieldComment, p.Comment})
	}
	for _, kv := range fields {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return err
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		fieldVideo, quoteEscaper.Replace(filepath.Base(f.Name()))))
	h.Set("Content-Type", videoContentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	return mw.Close()
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)
