package fmdata

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
)

// ContainerRepetition is the repetition targeted by Upload.
const ContainerRepetition = 1

// Upload stores the content of r in a container field of a persisted root
// record. The local value is left alone; call Record.Get to read the new
// container URL.
func (f *Field) Upload(ctx context.Context, r io.Reader, filename, mimeType string) (err error) {
	if f.Kind() != KindContainer {
		return fmt.Errorf("%w: %q is a %s field", ErrInvalidFieldKind, f.name, f.Kind())
	}
	rec := f.record
	if rec.IsChild() {
		return invalidArgument("container %q is on a portal row; upload through its own layout", f.name)
	}
	if rec.state != StatePersisted {
		return invalidState("upload into", rec.state)
	}
	if strings.TrimSpace(filename) == "" {
		return invalidArgument("filename is required")
	}

	ctx, span := rec.startSpan(ctx, "Upload")
	defer func() { endWithError(span, err) }()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="upload"; filename=%q`, filename))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	header.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return fmt.Errorf("fmdata: build upload: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("fmdata: read upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("fmdata: build upload: %w", err)
	}

	resp, err := rec.layout.client.session.Do(ctx, &Request{
		Method:      http.MethodPost,
		Path:        rec.layout.recordPath(rec.recordID) + "/containers/" + url.PathEscape(f.name) + "/" + strconv.Itoa(ContainerRepetition),
		Payload:     buf.Bytes(),
		ContentType: mw.FormDataContentType(),
	})
	if err != nil {
		return err
	}
	var payload struct {
		ModID flexInt `json:"modId"`
	}
	if err := resp.Decode(&payload); err == nil && payload.ModID > 0 {
		rec.modID = int(payload.ModID)
	}
	return nil
}

func (f *Field) containerURL() (string, error) {
	if f.Kind() != KindContainer {
		return "", fmt.Errorf("%w: %q is a %s field", ErrInvalidFieldKind, f.name, f.Kind())
	}
	if f.IsEmpty() {
		return "", invalidArgument("container %q is empty", f.name)
	}
	s, _ := f.value.(string)
	return s, nil
}

// DownloadStream opens the container content. The caller closes the body.
func (f *Field) DownloadStream(ctx context.Context) (io.ReadCloser, http.Header, error) {
	rawURL, err := f.containerURL()
	if err != nil {
		return nil, nil, err
	}
	resp, err := f.record.layout.client.session.Stream(ctx, rawURL)
	if err != nil {
		return nil, nil, err
	}
	return resp.Body, resp.Header, nil
}

// Download reads the whole container content.
func (f *Field) Download(ctx context.Context) ([]byte, error) {
	body, _, err := f.DownloadStream(ctx)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("fmdata: read container %q: %w", f.name, err)
	}
	return data, nil
}
