package llm

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// maxAttachmentBytes bounds inline attachments; Gemini rejects larger inline payloads.
const maxAttachmentBytes = 20 << 20

// loadAttachment downloads an http(s) or file:// attachment and resolves its MIME type.
func loadAttachment(ctx context.Context, httpClient *http.Client, att Attachment) ([]byte, string, error) {
	u, err := url.Parse(att.URL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid attachment URL: %w", err)
	}

	var (
		data        []byte
		contentType string
	)
	switch u.Scheme {
	case "file":
		data, err = readLimited(u.Path)
		if err != nil {
			return nil, "", err
		}
	case "http", "https":
		data, contentType, err = download(ctx, httpClient, att.URL)
		if err != nil {
			return nil, "", err
		}
	default:
		return nil, "", fmt.Errorf("unsupported attachment scheme %q", u.Scheme)
	}

	return data, attachmentMIMEType(att, u.Path, contentType), nil
}

func readLimited(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open attachment: %w", err)
	}
	defer f.Close()
	return readAll(f)
}

func download(ctx context.Context, httpClient *http.Client, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create attachment request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, "", classify("download attachment", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, "", &TransientError{Op: "download attachment", Cause: fmt.Errorf("HTTP %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return nil, "", fmt.Errorf("download attachment: HTTP %d", resp.StatusCode)
	}

	data, err := readAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func readAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxAttachmentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment: %w", err)
	}
	if len(data) > maxAttachmentBytes {
		return nil, fmt.Errorf("attachment exceeds %d bytes", maxAttachmentBytes)
	}
	return data, nil
}

// attachmentMIMEType prefers the declared type, then the server's, then the extension.
func attachmentMIMEType(att Attachment, path, contentType string) string {
	if att.MIMEType != "" {
		return att.MIMEType
	}
	if contentType != "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil && mt != "application/octet-stream" {
			return mt
		}
	}
	if mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); mt != "" {
		if base, _, err := mime.ParseMediaType(mt); err == nil {
			return base
		}
		return mt
	}
	return "application/pdf"
}
