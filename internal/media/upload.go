// ABOUTME: Upload describes one submitted file independently of the transport
// ABOUTME: HTTP handlers build these from multipart headers

package media

import (
	"bytes"
	"io"
	"mime/multipart"
)

// Upload is one file received with a submission.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// Empty reports whether the upload carries no bytes.
func (u Upload) Empty() bool {
	return u.Size <= 0 || u.Open == nil
}

// FromMultipart wraps a multipart file header.
func FromMultipart(fh *multipart.FileHeader) Upload {
	return Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// FromBytes builds an upload over an in-memory body.
func FromBytes(filename, contentType string, data []byte) Upload {
	return Upload{
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// NonEmpty returns the uploads that carry bytes.
func NonEmpty(uploads []Upload) []Upload {
	var out []Upload
	for _, u := range uploads {
		if !u.Empty() {
			out = append(out, u)
		}
	}
	return out
}
