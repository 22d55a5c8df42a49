package model

import (
	"encoding/json"
	"math/rand"
)

// GenerationParams are the parameters forwarded to the upstream generation
// endpoint. Optional fields are omitted from the query when zero.
type GenerationParams struct {
	Prompt         string `json:"prompt" validate:"required,max=4000"`
	NegativePrompt string `json:"negativePrompt,omitempty" validate:"max=4000"`
	Model          string `json:"model,omitempty"`
	Width          int    `json:"width,omitempty" validate:"omitempty,min=64,max=4096"`
	Height         int    `json:"height,omitempty" validate:"omitempty,min=64,max=4096"`
	Seed           *int64 `json:"seed,omitempty"`
	Enhance        bool   `json:"enhance,omitempty"`
	Private        bool   `json:"private,omitempty"`
	Safe           bool   `json:"safe,omitempty"`
	ReferenceImage string `json:"referenceImage,omitempty" validate:"omitempty,url"`
	Duration       int    `json:"duration,omitempty" validate:"omitempty,min=1,max=60"`
	Audio          bool   `json:"audio,omitempty"`
	Quality        string `json:"quality,omitempty" validate:"omitempty,oneof=low medium high"`
}

// HasExplicitSeed reports whether the caller pinned a usable seed. Negative
// seeds are outside the range the upstream endpoint accepts and are treated
// as unset.
func (p *GenerationParams) HasExplicitSeed() bool {
	return p.Seed != nil && *p.Seed >= 0
}

// Normalized returns a copy with the seed defaulted. When no usable seed was
// supplied, a uniform random 31-bit value is drawn so the request stays
// inside the endpoint's accepted seed range.
func (p GenerationParams) Normalized() GenerationParams {
	if !p.HasExplicitSeed() {
		seed := int64(rand.Int31())
		p.Seed = &seed
	}
	return p
}

// ForItem derives the parameters for one batch item. An explicit template
// seed is locked and shared by every item; otherwise each item draws its own
// seed so items are not accidental duplicates of one another.
func (p GenerationParams) ForItem() GenerationParams {
	if p.HasExplicitSeed() {
		return p
	}
	seed := int64(rand.Int31())
	p.Seed = &seed
	return p
}

// EncodeParams serializes params for a job row.
func EncodeParams(p GenerationParams) ([]byte, error) {
	return json.Marshal(p)
}

// DecodeParams deserializes params from a job row.
func DecodeParams(data []byte) (GenerationParams, error) {
	var p GenerationParams
	err := json.Unmarshal(data, &p)
	return p, err
}
