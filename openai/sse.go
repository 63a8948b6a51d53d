package openai

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

const doneSentinel = "[DONE]"

// sseDecoder turns a text/event-stream body into stream chunks.
//
// Lines are assembled across reads, so a data line split over several
// network packets is decoded once it is complete. Lines other than "data:"
// (comments, event names, blank separators) are ignored.
type sseDecoder struct {
	r *bufio.Reader
}

func newSSEDecoder(r io.Reader) *sseDecoder {
	return &sseDecoder{r: bufio.NewReader(r)}
}

// next returns the next chunk, or io.EOF at the [DONE] sentinel or the end
// of the body. Read errors are returned unchanged.
func (d *sseDecoder) next() (*streamChunk, error) {
	for {
		line, readErr := d.r.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return nil, readErr
		}

		if payload, ok := dataPayload(line); ok {
			if payload == doneSentinel {
				return nil, io.EOF
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				return nil, &StreamError{Op: "decoding chunk", Cause: err}
			}
			if chunk.Error != nil {
				return nil, &StreamError{Op: "server error", Cause: chunk.Error.toAPIError()}
			}
			return &chunk, nil
		}

		if readErr != nil {
			return nil, readErr
		}
	}
}

// dataPayload extracts the payload of an SSE data line.
// Invalid UTF-8 is replaced rather than rejected.
func dataPayload(line string) (string, bool) {
	line = strings.TrimRight(line, "\r\n")
	rest, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return "", false
	}

	payload := strings.TrimSpace(strings.ToValidUTF8(rest, "\uFFFD"))
	if payload == "" {
		return "", false
	}
	return payload, true
}
