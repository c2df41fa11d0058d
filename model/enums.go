package model

// Phase labels the dialogue state machine. The label is monotone within a
// handled request: INFO_COLLECTION may advance to QNA, never the reverse.
type Phase string

const (
	PhaseInfoCollection Phase = "INFO_COLLECTION"
	PhaseQNA            Phase = "QNA"
)

// Gender values accepted on a user profile.
type Gender string

const (
	GenderMale        Gender = "male"
	GenderFemale      Gender = "female"
	GenderOther       Gender = "other"
	GenderUnspecified Gender = "unspecified"
)

// Valid reports whether g is one of the recognized gender values.
func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther, GenderUnspecified:
		return true
	}
	return false
}

// HMO is an Israeli health fund. The canonical values are the Hebrew
// names; English synonyms are canonicalized by the patch merger only.
type HMO string

const (
	HMOMaccabi  HMO = "מכבי"
	HMOMeuhedet HMO = "מאוחדת"
	HMOClalit   HMO = "כללית"
)

// Valid reports whether h is one of the three canonical HMO values.
func (h HMO) Valid() bool {
	switch h {
	case HMOMaccabi, HMOMeuhedet, HMOClalit:
		return true
	}
	return false
}

// Tier is a supplemental membership level, canonically in Hebrew.
type Tier string

const (
	TierGold   Tier = "זהב"
	TierSilver Tier = "כסף"
	TierBronze Tier = "ארד"
)

// Valid reports whether t is one of the three canonical tier values.
func (t Tier) Valid() bool {
	switch t {
	case TierGold, TierSilver, TierBronze:
		return true
	}
	return false
}

// Locale selects the assistant's reply language.
type Locale string

const (
	LocaleHE Locale = "he"
	LocaleEN Locale = "en"
)
