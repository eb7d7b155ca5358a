package nodes

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

var ErrNotPNG = errors.New("not a PNG file")

// maxChunk bounds a single chunk read; metadata chunks are far smaller.
const maxChunk = 64 << 20

// TextChunk is one tEXt, zTXt or iTXt entry.
type TextChunk struct {
	Keyword string
	Text    string
}

// ReadPNGText returns the textual metadata chunks of a PNG stream in file
// order. Reading stops at IEND.
func ReadPNGText(r io.Reader) ([]TextChunk, error) {
	br := bufio.NewReader(r)

	sig := make([]byte, len(pngSignature))
	if _, err := io.ReadFull(br, sig); err != nil || !bytes.Equal(sig, pngSignature) {
		return nil, ErrNotPNG
	}

	chunks := []TextChunk{}
	header := make([]byte, 8)
	for {
		if _, err := io.ReadFull(br, header); err != nil {
			return nil, fmt.Errorf("truncated PNG: %w", err)
		}
		length := binary.BigEndian.Uint32(header[:4])
		kind := string(header[4:8])
		if length > maxChunk {
			return nil, fmt.Errorf("chunk %s too large: %d bytes", kind, length)
		}

		switch kind {
		case "tEXt", "zTXt", "iTXt":
			data := make([]byte, length)
			if _, err := io.ReadFull(br, data); err != nil {
				return nil, fmt.Errorf("truncated %s chunk: %w", kind, err)
			}
			chunk, err := parseTextChunk(kind, data)
			if err != nil {
				return nil, err
			}
			chunks = append(chunks, chunk)
		default:
			if _, err := br.Discard(int(length)); err != nil {
				return nil, fmt.Errorf("truncated %s chunk: %w", kind, err)
			}
		}

		// CRC
		if _, err := br.Discard(4); err != nil {
			return nil, fmt.Errorf("truncated PNG: %w", err)
		}
		if kind == "IEND" {
			return chunks, nil
		}
	}
}

func parseTextChunk(kind string, data []byte) (TextChunk, error) {
	keyword, rest, ok := bytes.Cut(data, []byte{0})
	if !ok {
		return TextChunk{}, fmt.Errorf("malformed %s chunk", kind)
	}
	chunk := TextChunk{Keyword: latin1(keyword)}

	switch kind {
	case "tEXt":
		chunk.Text = latin1(rest)

	case "zTXt":
		if len(rest) < 1 {
			return TextChunk{}, errors.New("malformed zTXt chunk")
		}
		text, err := inflate(rest[1:])
		if err != nil {
			return TextChunk{}, fmt.Errorf("zTXt %s: %w", chunk.Keyword, err)
		}
		chunk.Text = latin1(text)

	case "iTXt":
		if len(rest) < 2 {
			return TextChunk{}, errors.New("malformed iTXt chunk")
		}
		compressed := rest[0] == 1
		rest = rest[2:]
		// Language tag, then translated keyword.
		for i := 0; i < 2; i++ {
			_, after, ok := bytes.Cut(rest, []byte{0})
			if !ok {
				return TextChunk{}, errors.New("malformed iTXt chunk")
			}
			rest = after
		}
		if compressed {
			text, err := inflate(rest)
			if err != nil {
				return TextChunk{}, fmt.Errorf("iTXt %s: %w", chunk.Keyword, err)
			}
			rest = text
		}
		chunk.Text = string(rest)
	}
	return chunk, nil
}

func inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(io.LimitReader(zr, maxChunk))
}

func latin1(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}
