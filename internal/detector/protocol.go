package detector

import (
	"encoding/binary"
	"fmt"
	"image"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/Desai0/CR-Neuro/internal/types"
)

// maxMessageSize guards against a corrupt length prefix.
const maxMessageSize = 64 << 20

// request is one frame sent to the worker.
type request struct {
	Seq        uint64  `msgpack:"seq"`
	Width      int     `msgpack:"width"`
	Height     int     `msgpack:"height"`
	Format     string  `msgpack:"format"`
	FrameData  []byte  `msgpack:"frame_data"`
	Confidence float64 `msgpack:"confidence"`
}

type wireDetection struct {
	Class      string     `msgpack:"class"`
	Confidence float64    `msgpack:"confidence"`
	Box        [4]float64 `msgpack:"box"` // x1, y1, x2, y2
}

type timing struct {
	TotalMS     float64 `msgpack:"total_ms"`
	InferenceMS float64 `msgpack:"inference_ms"`
}

// response is the worker's answer to the request with the same Seq.
type response struct {
	Seq        uint64          `msgpack:"seq"`
	Detections []wireDetection `msgpack:"detections"`
	Timing     timing          `msgpack:"timing"`
	Error      string          `msgpack:"error,omitempty"`
}

// writeMessage writes v as a 4-byte big-endian length prefix followed by msgpack data.
func writeMessage(w io.Writer, v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal msgpack message: %w", err)
	}

	frame := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[4:], data)

	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// readMessage reads one length-prefixed msgpack message into v.
// io.EOF is returned unwrapped when the stream ends cleanly between messages.
func readMessage(r io.Reader, v any) error {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return fmt.Errorf("failed to read length prefix: %w", err)
	}

	n := binary.BigEndian.Uint32(lengthBuf[:])
	if n > maxMessageSize {
		return fmt.Errorf("message length %d exceeds limit", n)
	}

	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return fmt.Errorf("failed to read msgpack data (expected %d bytes): %w", n, err)
	}

	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal msgpack message: %w", err)
	}
	return nil
}

// newRequest packs img into a tightly strided RGBA buffer.
func newRequest(seq uint64, img *image.RGBA, confidence float64) request {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	rowLen := 4 * w

	var pix []byte
	if img.Stride == rowLen && b.Min == (image.Point{}) {
		pix = img.Pix[:rowLen*h]
	} else {
		pix = make([]byte, rowLen*h)
		for y := 0; y < h; y++ {
			off := img.PixOffset(b.Min.X, b.Min.Y+y)
			copy(pix[y*rowLen:(y+1)*rowLen], img.Pix[off:off+rowLen])
		}
	}

	return request{
		Seq:        seq,
		Width:      w,
		Height:     h,
		Format:     "rgba",
		FrameData:  pix,
		Confidence: confidence,
	}
}

// toDetections converts worker boxes (float pixels) to integer boxes,
// truncating toward zero, and drops anything under confidence.
func toDetections(in []wireDetection, confidence float64) []types.Detection {
	out := make([]types.Detection, 0, len(in))
	for _, d := range in {
		if d.Confidence < confidence {
			continue
		}
		out = append(out, types.Detection{
			Class:      d.Class,
			Confidence: d.Confidence,
			Box: types.Box{
				X1: int(d.Box[0]),
				Y1: int(d.Box[1]),
				X2: int(d.Box[2]),
				Y2: int(d.Box[3]),
			},
		})
	}
	return out
}
