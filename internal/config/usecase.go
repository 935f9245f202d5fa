package config

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"seatwatch/internal/model"
)

// AreaOfInterest is the decoded region document:
// {"polygon":{"coordinates":[{"x":..,"y":..},...]}}
type AreaOfInterest struct {
	Polygon struct {
		Coordinates []model.Point `json:"coordinates"`
	} `json:"polygon"`
}

// Params tunes the pipeline business logic.
type Params struct {
	// Logic selects the business logic stage: "seat" or "presence".
	Logic string `json:"logic"`
	// EventTTL is the number of empty frames tolerated before a
	// presence event ends.
	EventTTL int `json:"eventTtl"`
	// RowTolerance and MinSeatsPerRow tune seat map construction.
	RowTolerance   float64 `json:"rowTolerance"`
	MinSeatsPerRow int     `json:"minSeatsPerRow"`
	// ConfidenceThreshold applies to raw inference conversion.
	ConfidenceThreshold float64 `json:"confidenceThreshold"`
}

// UnmarshalJSON also accepts the short confThres key some upstream
// deployments emit; the long key wins when both are present.
func (p *Params) UnmarshalJSON(b []byte) error {
	type params Params
	aux := struct {
		*params
		ConfThres float64 `json:"confThres"`
	}{params: (*params)(p)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if p.ConfidenceThreshold == 0 {
		p.ConfidenceThreshold = aux.ConfThres
	}
	return nil
}

// UseCase is the fully decoded pipeline configuration.
type UseCase struct {
	AreaOfInterest AreaOfInterest    `json:"areaOfInterest"`
	Params         Params            `json:"params"`
	ClassFilter    map[string]string `json:"classFilter"`
}

const (
	LogicSeat     = "seat"
	LogicPresence = "presence"
)

// defaults applied to zero-value params after decoding
func (u *UseCase) applyDefaults() {
	if u.Params.Logic == "" {
		u.Params.Logic = LogicSeat
	}
	if u.Params.EventTTL <= 0 {
		u.Params.EventTTL = 5
	}
	if u.Params.ConfidenceThreshold <= 0 {
		u.Params.ConfidenceThreshold = 0.25
	}
	if len(u.ClassFilter) == 0 {
		u.ClassFilter = map[string]string{"56": "chair"}
	}
}

// Validate checks the decoded configuration for usability.
func (u *UseCase) Validate() error {
	if len(u.AreaOfInterest.Polygon.Coordinates) < 3 {
		return fmt.Errorf("area of interest polygon needs at least 3 points, got %d",
			len(u.AreaOfInterest.Polygon.Coordinates))
	}
	switch u.Params.Logic {
	case LogicSeat, LogicPresence:
	default:
		return fmt.Errorf("unknown pipeline logic %q", u.Params.Logic)
	}
	return nil
}

// LoadUseCase decodes the pipeline configuration. When ConfigFile is
// set the file takes precedence over the env documents; otherwise each
// document arrives base64-encoded in its own variable, matching the
// format the upstream orchestrator injects.
func LoadUseCase(env PipelineEnv) (*UseCase, error) {
	if env.ConfigFile != "" {
		return LoadUseCaseFile(env.ConfigFile)
	}

	uc := &UseCase{}

	if env.AreaOfInterestB64 == "" {
		return nil, fmt.Errorf("AOI_B64 is required when no use-case config file is set")
	}
	if err := decodeB64JSON(env.AreaOfInterestB64, &uc.AreaOfInterest); err != nil {
		return nil, fmt.Errorf("decode area of interest: %w", err)
	}
	if env.ParamsB64 != "" {
		if err := decodeB64JSON(env.ParamsB64, &uc.Params); err != nil {
			return nil, fmt.Errorf("decode pipeline params: %w", err)
		}
	}
	if env.ClassFilterB64 != "" {
		if err := decodeB64JSON(env.ClassFilterB64, &uc.ClassFilter); err != nil {
			return nil, fmt.Errorf("decode class filter: %w", err)
		}
	}

	uc.applyDefaults()
	if err := uc.Validate(); err != nil {
		return nil, err
	}
	return uc, nil
}

// LoadUseCaseFile reads a plain-JSON use-case document from disk.
func LoadUseCaseFile(path string) (*UseCase, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read use-case config: %w", err)
	}

	uc := &UseCase{}
	if err := json.Unmarshal(b, uc); err != nil {
		return nil, fmt.Errorf("parse use-case config: %w", err)
	}

	uc.applyDefaults()
	if err := uc.Validate(); err != nil {
		return nil, err
	}
	return uc, nil
}

func decodeB64JSON(s string, v any) error {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return fmt.Errorf("base64: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("json: %w", err)
	}
	return nil
}
