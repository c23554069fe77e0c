package serving

import (
	"bytes"
	"fmt"
)

// PredictResponse is the body returned by the predict endpoint
type PredictResponse struct {
	Predictions []Prediction `json:"predictions"`
}

// Prediction is one instance of a PredictResponse. Classification models
// return an object carrying "probabilities", plain signatures return the
// output vector directly; both decode into Probabilities.
type Prediction struct {
	Probabilities []float64   `json:"probabilities"`
	Classes       interface{} `json:"classes,omitempty"`
}

type predictionObject struct {
	Probabilities []float64   `json:"probabilities"`
	Classes       interface{} `json:"classes,omitempty"`
}

// UnmarshalJSON accepts either an object or a bare vector
func (p *Prediction) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty prediction")
	}

	switch trimmed[0] {
	case '{':
		var obj predictionObject
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return err
		}
		p.Probabilities = obj.Probabilities
		p.Classes = obj.Classes
	case '[':
		var vector []float64
		if err := json.Unmarshal(trimmed, &vector); err != nil {
			return err
		}
		p.Probabilities = vector
		p.Classes = nil
	default:
		return fmt.Errorf("unexpected prediction %.32q", trimmed)
	}
	return nil
}

// First returns the probability vector of the first instance
func (r *PredictResponse) First() ([]float64, error) {
	if r == nil || len(r.Predictions) == 0 {
		return nil, fmt.Errorf("response has no predictions")
	}
	if len(r.Predictions[0].Probabilities) == 0 {
		return nil, fmt.Errorf("first prediction has no probabilities")
	}
	return r.Predictions[0].Probabilities, nil
}

// ModelStatusResponse is returned by GET /v1/models/<model>
type ModelStatusResponse struct {
	ModelVersionStatus []ModelVersionStatus `json:"model_version_status"`
}

// ModelVersionStatus describes one loaded version
type ModelVersionStatus struct {
	Version string `json:"version"`
	State   string `json:"state"`
	Status  struct {
		ErrorCode    string `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
}

// Available reports whether any version of the model is serving
func (s *ModelStatusResponse) Available() bool {
	for _, v := range s.ModelVersionStatus {
		if v.State == "AVAILABLE" {
			return true
		}
	}
	return false
}
