package serving

import (
	"fmt"
	"math"
)

// BackgroundMode decides whether output index 0 is a background class
// that has no line in the label file.
type BackgroundMode string

const (
	// BackgroundAuto offsets by one when the output is one wider than the labels
	BackgroundAuto BackgroundMode = "auto"
	// BackgroundOn always treats index 0 as background
	BackgroundOn BackgroundMode = "true"
	// BackgroundOff maps output index i to label i
	BackgroundOff BackgroundMode = "false"

	backgroundLabel = "background"
)

// ParseBackgroundMode validates a --background-class value
func ParseBackgroundMode(s string) (BackgroundMode, error) {
	switch m := BackgroundMode(s); m {
	case BackgroundAuto, BackgroundOn, BackgroundOff:
		return m, nil
	case "":
		return BackgroundAuto, nil
	}
	return "", fmt.Errorf("invalid background class mode %q, want auto|true|false", s)
}

// Classification is the arg-max of one prediction
type Classification struct {
	Index       int
	Probability float64
	Width       int
	Label       string
}

func (c Classification) String() string {
	return fmt.Sprintf("index=%d probability=%.6f width=%d label=%q", c.Index, c.Probability, c.Width, c.Label)
}

// ArgMax returns the position and value of the largest element. The first
// position wins on ties, NaN values are skipped.
func ArgMax(values []float64) (int, float64, error) {
	index := -1
	max := math.Inf(-1)
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if index < 0 || v > max {
			index, max = i, v
		}
	}
	if index < 0 {
		return -1, 0, fmt.Errorf("no comparable values in %d probabilities", len(values))
	}
	return index, max, nil
}

// Classify picks the top class of the first prediction in resp and looks
// its label up in labels.
func Classify(resp *PredictResponse, labels []string, mode BackgroundMode) (*Classification, error) {
	probabilities, err := resp.First()
	if err != nil {
		return nil, err
	}
	index, probability, err := ArgMax(probabilities)
	if err != nil {
		return nil, err
	}

	c := &Classification{
		Index:       index,
		Probability: probability,
		Width:       len(probabilities),
	}
	c.Label, err = LabelFor(index, len(probabilities), labels, mode)
	if err != nil {
		return c, err
	}
	return c, nil
}

// LabelFor maps a model output index to a label
func LabelFor(index, width int, labels []string, mode BackgroundMode) (string, error) {
	offset := 0
	switch mode {
	case BackgroundOn:
		offset = 1
	case BackgroundAuto, "":
		if width == len(labels)+1 {
			offset = 1
		}
	}

	if offset == 1 && index == 0 {
		return backgroundLabel, nil
	}
	i := index - offset
	if i < 0 || i >= len(labels) {
		return "", fmt.Errorf("output index %d has no label, %d labels loaded", index, len(labels))
	}
	return labels[i], nil
}
