package serializer

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
)

// ResponseToBytes returns the HTTP/1.1 representation of a response, suitable for storing.
// It consumes the response body and puts an independent copy back on res,
// so the caller can still send the response on.
func ResponseToBytes(res *http.Response) ([]byte, error) {
	body, err := DuplicateBody(res)
	if err != nil {
		return nil, err
	}

	stored := *res
	stored.Proto = "HTTP/1.1"
	stored.ProtoMajor = 1
	stored.ProtoMinor = 1
	stored.Header = res.Header.Clone()
	stored.Body = io.NopCloser(bytes.NewReader(body))
	stored.ContentLength = int64(len(body))
	stored.TransferEncoding = nil
	stored.Close = false

	buf := &bytes.Buffer{}
	if err := stored.Write(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DuplicateBody reads the whole response body and puts an independent copy back on res.
// It returns the body bytes.
func DuplicateBody(res *http.Response) ([]byte, error) {
	var body []byte
	if res.Body != nil {
		b, err := io.ReadAll(res.Body)
		res.Body.Close()
		if err != nil {
			return nil, err
		}
		body = b
	}
	// set response body back
	res.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

// BytesToResponse converts a stored byte slice back to a http.Response.
// The request is attached to the response and may be nil.
func BytesToResponse(b []byte, req *http.Request) (*http.Response, error) {
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), req)
}
