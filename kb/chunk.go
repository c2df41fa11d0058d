package kb

import (
	"strings"

	"github.com/nivkeidan/hmochat/model"
)

// Kind classifies what a chunk carries.
type Kind string

const (
	KindBenefit Kind = "benefit"
	KindContact Kind = "contact"
	KindService Kind = "service"
	KindBlurb   Kind = "blurb"
)

// Chunk is the atomic retrieval unit: one fact scoped to a service, an
// HMO and a membership tier where the source makes those explicit.
// An empty HMO means the chunk is cross-fund (contacts, blurbs).
type Chunk struct {
	Text      string    `json:"text"`
	SourceURI string    `json:"source_uri"`
	HMO       model.HMO `json:"hmo,omitempty"`
	TierTags  []string  `json:"tier_tags"`
	Section   string    `json:"section,omitempty"`
	Service   string    `json:"service,omitempty"`
	Kind      Kind      `json:"kind"`
}

// embeddingPayload renders the chunk as a compact fielded line. Embedding
// this instead of the bare text keeps section/service/fund context in the
// vector.
func (c Chunk) embeddingPayload() string {
	var bits []string
	if c.Section != "" {
		bits = append(bits, "section:"+c.Section)
	}
	if c.Service != "" {
		bits = append(bits, "service:"+c.Service)
	}
	if c.HMO != "" {
		bits = append(bits, "hmo:"+string(c.HMO))
	}
	if len(c.TierTags) > 0 {
		bits = append(bits, "tier:"+strings.Join(c.TierTags, "|"))
	}
	bits = append(bits, "kind:"+string(c.Kind))
	bits = append(bits, "text:"+c.Text)
	return strings.Join(bits, " | ")
}

// hasTier reports whether tag is listed on the chunk.
func (c Chunk) hasTier(tag string) bool {
	for _, t := range c.TierTags {
		if t == tag {
			return true
		}
	}
	return false
}
