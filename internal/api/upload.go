package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
)

// Multipart field names expected by the upload endpoint.
const (
	uploadFileField   = "files"
	uploadFolderField = "folderPath"
)

// ProgressFunc receives the number of body bytes sent so far and the total
// file size. It is called from the upload goroutine.
type ProgressFunc func(sent, total int64)

// UploadRequest describes one file to upload. Open is called once per
// attempt, so the content can be replayed after a token refresh.
type UploadRequest struct {
	Name       string
	Size       int64
	FolderPath string
	Open       func() (io.ReadCloser, error)
}

// Upload sends one file as a multipart form. The body is streamed, so memory
// use is independent of file size.
func (c *Client) Upload(ctx context.Context, req UploadRequest, progress ProgressFunc) (*UploadResult, error) {
	c.logger.Info("uploading file",
		slog.String("name", req.Name),
		slog.Int64("size", req.Size),
		slog.String("folder", req.FolderPath),
	)

	env, err := c.callEnvelope(ctx, &request{
		method:  http.MethodPost,
		path:    "/files/upload",
		route:   "/files/upload",
		body:    c.multipartBody(ctx, req, progress),
		timeout: c.uploadTimeout,
	})
	if err != nil {
		return nil, err
	}

	results, err := decodeUploadResults(env)
	if err != nil {
		return nil, err
	}

	if len(results) == 0 {
		return nil, &APIError{StatusCode: http.StatusOK, Message: firstNonEmpty(env.Message, "Upload failed"), Err: ErrRejected}
	}

	res := results[0]
	if !res.Success {
		msg := firstNonEmpty(res.Error, env.Message, "Upload failed")

		return nil, &APIError{StatusCode: http.StatusOK, Message: msg, Err: ErrRejected, Domain: classifyMessage(msg)}
	}

	if res.OriginalName == "" {
		res.OriginalName = req.Name
	}

	return &res, nil
}

// decodeUploadResults reads per-file outcomes from the envelope's results,
// falling back to data.results.
func decodeUploadResults(env *envelope) ([]UploadResult, error) {
	if len(env.Results) > 0 {
		var out []UploadResult
		if err := json.Unmarshal(env.Results, &out); err != nil {
			return nil, fmt.Errorf("api: decoding upload results: %w", err)
		}

		return out, nil
	}

	return decodeList[UploadResult](env.Data, "results")
}

// multipartBody returns a bodyFunc that streams req as multipart/form-data
// through a pipe, reporting progress as the file part is consumed.
func (c *Client) multipartBody(ctx context.Context, req UploadRequest, progress ProgressFunc) bodyFunc {
	return func() (io.ReadCloser, string, error) {
		src, err := req.Open()
		if err != nil {
			return nil, "", fmt.Errorf("opening %s: %w", req.Name, err)
		}

		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)

		go func() {
			defer src.Close()

			pw.CloseWithError(writeMultipart(mw, req, c.limiter.WrapReader(ctx, &progressReader{
				r:     src,
				total: req.Size,
				fn:    progress,
			})))
		}()

		return pr, mw.FormDataContentType(), nil
	}
}

func writeMultipart(mw *multipart.Writer, req UploadRequest, content io.Reader) error {
	part, err := mw.CreateFormFile(uploadFileField, req.Name)
	if err != nil {
		return fmt.Errorf("creating file part: %w", err)
	}

	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("streaming %s: %w", req.Name, err)
	}

	if req.FolderPath != "" {
		if err := mw.WriteField(uploadFolderField, req.FolderPath); err != nil {
			return fmt.Errorf("writing folder field: %w", err)
		}
	}

	return mw.Close()
}

// progressReader reports cumulative bytes read to fn.
type progressReader struct {
	r     io.Reader
	total int64
	fn    ProgressFunc
	sent  int64
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.fn != nil {
		p.sent += int64(n)
		p.fn(p.sent, p.total)
	}

	return n, err
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}

	return ""
}
