package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/canbridge/boardd/internal/safety"
)

// carParamsKey is the only key this system reads from the store (§6).
const carParamsKey = "CarParams"

// carParams is the decoded shape of the CarParams blob. The wider driving
// stack that writes this blob carries many more fields; this system only
// cares about SafetyModel, matching the original "read one field out of a
// much larger message" pattern.
type carParams struct {
	SafetyModel string `json:"safety_model"`
}

var safetyModelByName = map[string]safety.Model{
	"NO_OUTPUT": safety.NoOutput,
	"HONDA":     safety.Honda,
	"TOYOTA":    safety.Toyota,
	"ELM327":    safety.ELM327,
}

// DecodeSafetyModel extracts the safety model from a raw CarParams blob. An
// unrecognized string decodes to safety.Unknown rather than an error — the
// safety gate logs and skips unknown models rather than failing outright.
func DecodeSafetyModel(blob []byte) (safety.Model, error) {
	var cp carParams
	if err := json.Unmarshal(blob, &cp); err != nil {
		return safety.Unknown, fmt.Errorf("paramstore: decode CarParams: %w", err)
	}
	if m, ok := safetyModelByName[cp.SafetyModel]; ok {
		return m, nil
	}
	return safety.Unknown, nil
}

// GateSource adapts a Store into a safety.ConfigSource, polling the
// CarParams key.
type GateSource struct {
	Store Store
}

func (g GateSource) Poll(_ context.Context) (safety.Model, bool, error) {
	blob, err := g.Store.Get(carParamsKey)
	if errors.Is(err, ErrNotSet) {
		return safety.Unknown, false, nil
	}
	if err != nil {
		return safety.Unknown, false, err
	}
	model, err := DecodeSafetyModel(blob)
	if err != nil {
		return safety.Unknown, false, err
	}
	return model, true, nil
}
