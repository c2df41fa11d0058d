package dialogue

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/nivkeidan/hmochat/model"
)

// Synonym maps applied before validation. Canonical HMO and tier values
// are Hebrew; the LLM frequently proposes the English names.
var (
	hmoSynonyms = map[string]model.HMO{
		"maccabi":  model.HMOMaccabi,
		"meuhedet": model.HMOMeuhedet,
		"clalit":   model.HMOClalit,
	}
	tierSynonyms = map[string]model.Tier{
		"gold":   model.TierGold,
		"silver": model.TierSilver,
		"bronze": model.TierBronze,
	}
	genderSynonyms = map[string]model.Gender{
		"male":   model.GenderMale,
		"female": model.GenderFemale,
		"זכר":    model.GenderMale,
		"נקבה":   model.GenderFemale,
	}
)

// mergePatch applies an LLM-proposed partial update to the profile.
// Unknown keys and null values are ignored; a field whose canonicalized
// value still fails validation is rolled back individually. The input
// profile is never mutated.
func mergePatch(p model.UserProfile, patch map[string]any, requestID string) model.UserProfile {
	out := p
	for key, raw := range patch {
		if raw == nil {
			continue
		}
		if err := applyField(&out, key, raw); err != nil {
			slog.Warn("dialogue: ignoring bad patch field",
				"field", key,
				"error", err,
				"request_id", requestID,
			)
		}
	}
	return out
}

func applyField(p *model.UserProfile, key string, raw any) error {
	val := stringValue(raw)

	switch key {
	case "first_name":
		name := strings.TrimSpace(stringValueKeepCase(raw))
		if name == "" {
			return fmt.Errorf("empty value")
		}
		p.FirstName = name
	case "last_name":
		name := strings.TrimSpace(stringValueKeepCase(raw))
		if name == "" {
			return fmt.Errorf("empty value")
		}
		p.LastName = name
	case "id_number":
		if !model.NineDigits(val) {
			return fmt.Errorf("id_number must be 9 digits, got %q", val)
		}
		p.IDNumber = val
	case "hmo_card_number":
		if !model.NineDigits(val) {
			return fmt.Errorf("hmo_card_number must be 9 digits, got %q", val)
		}
		p.HMOCardNumber = val
	case "gender":
		g := model.Gender(val)
		if mapped, ok := genderSynonyms[val]; ok {
			g = mapped
		}
		if !g.Valid() {
			return fmt.Errorf("unknown gender %q", val)
		}
		p.Gender = g
	case "birth_year":
		year, err := intValue(raw)
		if err != nil {
			return err
		}
		if !model.ValidBirthYear(year) {
			return fmt.Errorf("birth_year %d out of range", year)
		}
		p.BirthYear = year
	case "hmo_name":
		h := model.HMO(strings.TrimSpace(stringValueKeepCase(raw)))
		if mapped, ok := hmoSynonyms[val]; ok {
			h = mapped
		}
		if !h.Valid() {
			return fmt.Errorf("unknown hmo %q", val)
		}
		p.HMOName = h
	case "membership_tier":
		t := model.Tier(strings.TrimSpace(stringValueKeepCase(raw)))
		if mapped, ok := tierSynonyms[val]; ok {
			t = mapped
		}
		if !t.Valid() {
			return fmt.Errorf("unknown tier %q", val)
		}
		p.MembershipTier = t
	default:
		return fmt.Errorf("unknown field")
	}
	return nil
}

// stringValue lowercases and trims, matching how synonyms are keyed.
func stringValue(raw any) string {
	return strings.ToLower(strings.TrimSpace(stringValueKeepCase(raw)))
}

func stringValueKeepCase(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case float64: // JSON numbers decode as float64
		return strconv.FormatInt(int64(v), 10)
	case int:
		return strconv.Itoa(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func intValue(raw any) (int, error) {
	switch v := raw.(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("not a number: %T", raw)
	}
}
