package serving

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg" // register decoders for tensor payloads
	_ "image/png"
	"os"

	"github.com/nfnt/resize"
)

// PayloadKind selects how the image is put into the predict request
type PayloadKind string

const (
	// PayloadB64 sends the raw image bytes base64 encoded
	PayloadB64 PayloadKind = "b64"
	// PayloadTensor sends the decoded image as a normalized [1,H,W,3] tensor
	PayloadTensor PayloadKind = "tensor"
)

// PredictRequest is a marshaled predict body. It is built once per run
// and sent verbatim by every call.
type PredictRequest struct {
	Kind PayloadKind
	Body []byte
}

type b64Instance struct {
	B64 string `json:"b64"`
}

type b64Request struct {
	Instances []b64Instance `json:"instances"`
}

type tensorRequest struct {
	Instances [][][][]float64 `json:"instances"`
}

// RequestOptions controls payload construction
type RequestOptions struct {
	Kind PayloadKind
	// Resize is the square edge the image is scaled to for tensor payloads, 0 keeps the size.
	Resize uint
}

// ReadImage reads raw image bytes from disk
func ReadImage(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image %s is empty", path)
	}
	return data, nil
}

// NewPredictRequest builds the predict body for image
func NewPredictRequest(img []byte, opts RequestOptions) (*PredictRequest, error) {
	switch opts.Kind {
	case PayloadB64, "":
		body, err := NewB64Body(img)
		if err != nil {
			return nil, err
		}
		return &PredictRequest{Kind: PayloadB64, Body: body}, nil
	case PayloadTensor:
		body, err := NewTensorBody(img, opts.Resize)
		if err != nil {
			return nil, err
		}
		return &PredictRequest{Kind: PayloadTensor, Body: body}, nil
	default:
		return nil, fmt.Errorf("unknown payload kind %q", opts.Kind)
	}
}

// NewB64Body returns {"instances":[{"b64":"<base64 of img>"}]}
func NewB64Body(img []byte) ([]byte, error) {
	return json.Marshal(&b64Request{
		Instances: []b64Instance{{B64: base64.StdEncoding.EncodeToString(img)}},
	})
}

// NewTensorBody decodes img and returns it as a batch of one normalized
// RGB tensor, pixel values scaled to [0,1].
func NewTensorBody(img []byte, edge uint) ([]byte, error) {
	decoded, format, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if edge > 0 {
		decoded = resize.Resize(edge, edge, decoded, resize.Lanczos3)
	}

	bounds := decoded.Bounds()
	tensor := make([][][]float64, bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		row := make([][]float64, bounds.Dx())
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := decoded.At(x, y).RGBA()
			row[x-bounds.Min.X] = []float64{
				float64(r>>8) / 255.0,
				float64(g>>8) / 255.0,
				float64(b>>8) / 255.0,
			}
		}
		tensor[y-bounds.Min.Y] = row
	}

	body, err := json.Marshal(&tensorRequest{Instances: [][][][]float64{tensor}})
	if err != nil {
		return nil, fmt.Errorf("marshal %s tensor: %w", format, err)
	}
	return body, nil
}
