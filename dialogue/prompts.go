package dialogue

import "github.com/nivkeidan/hmochat/model"

// Prompt texts are bilingual; the session locale picks the variant. The
// allowed-value legends stay in Hebrew in both variants because the
// canonical enum values are Hebrew.

const (
	hmoLegendHE  = "קופות חולים מותרות: מכבי | מאוחדת | כללית"
	tierLegendHE = "מסלולי חברות מותרים: זהב | כסף | ארד"
	hmoLegendEN  = "Allowed HMOs: מכבי | מאוחדת | כללית"
	tierLegendEN = "Allowed tiers: זהב | כסף | ארד"
)

const infoJSONContractHE = "החזר תמיד אובייקט JSON בשורה אחת בלבד, עם המפתחות המדויקים:\n" +
	"assistant_say: מחרוזת (מה לומר למשתמש בעברית)\n" +
	"profile_patch: אובייקט עם רק השדות שברצונך לעדכן: " +
	"{first_name,last_name,id_number,gender,birth_year,hmo_name,hmo_card_number,membership_tier}\n" +
	"status: אחד מ- ASKING | READY_TO_CONFIRM | CONFIRMED\n\n" +
	"כללים:\n" +
	"• בקש בכל פעם פריט חסר/לא תקין אחד (או שניים קצר).\n" +
	"• לאחר שכל השדות תקינים, עבור למצב READY_TO_CONFIRM והצג סיכום קצר לאישור/תיקון.\n" +
	"• רק לאחר אישור מפורש מהמשתמש החזר status=CONFIRMED.\n" +
	"• אין להחזיר טקסט נוסף מעבר ל-JSON בשורה אחת."

const infoJSONContractEN = "Always return a ONE-LINE JSON object with EXACT keys:\n" +
	"assistant_say: string (what to say to the user in their language)\n" +
	"profile_patch: object with only fields to update: " +
	"{first_name,last_name,id_number,gender,birth_year,hmo_name,hmo_card_number,membership_tier}\n" +
	"status: one of ASKING | READY_TO_CONFIRM | CONFIRMED\n\n" +
	"Rules:\n" +
	"• Ask for one missing/invalid item at a time (two max if brief).\n" +
	"• When all fields validate, switch to READY_TO_CONFIRM and present a concise summary for user confirmation/correction.\n" +
	"• Only after explicit user confirmation return status=CONFIRMED.\n" +
	"• Do not return anything except the single JSON line."

func sysPromptInfo(locale model.Locale) string {
	if locale == model.LocaleHE {
		return "אתה עוזר איסוף פרטים מדויק, בשיחה חופשית ללא טפסים וללא לוגיקה מצד הלקוח. " +
			"עליך לאסוף ולוודא את השדות: שם פרטי, שם משפחה, ת״ז (9 ספרות), מין, שנת לידה, " +
			hmoLegendHE + ", מספר כרטיס קופה (9 ספרות), " + tierLegendHE + ". " +
			"תקינות: ת״ז ומספר כרטיס בדיוק 9 ספרות; גיל בין 0–120 לפי שנת לידה. " +
			"יש לשמור על ניסוח טבעי וקצר, ולדרוש תיקון כאשר נתון לא תקין. " +
			"לאחר שכל השדות תקינים, בצע שלב אישור מרוכז.\n\n" +
			infoJSONContractHE
	}
	return "You are a precise information-collection assistant. Converse naturally (no forms). " +
		"Collect and validate: first_name, last_name, id_number (9 digits), gender, birth_year, " +
		"HMO (" + hmoLegendEN + "), hmo_card_number (9 digits), membership_tier (" + tierLegendEN + "). " +
		"Validation: id_number and hmo_card_number are exactly 9 digits; age must be 0–120 via birth_year. " +
		"Keep wording brief and natural; ask for corrections when invalid. " +
		"When everything is valid, present a concise confirmation step.\n\n" +
		infoJSONContractEN
}

func sysPromptQNA(locale model.Locale) string {
	if locale == model.LocaleHE {
		return "אתה עוזר תשובות תפעולי לשירותי קופות החולים בישראל. " +
			"ענה ברור וקצר רק על בסיס קטעי הידע המצורפים (אל תסיק מידע חיצוני). " +
			"אם המידע לא מופיע – אמור שאינך בטוח והצע ניסוח שאלה חלופי. " +
			"בסוף המענה ציין הפניות בסגנון [1], [2] בהתאם לקטעים."
	}
	return "You are a grounded assistant for Israeli HMO service questions. " +
		"Answer clearly and concisely using ONLY the provided snippets. " +
		"If the information is missing, state uncertainty and suggest a better query. " +
		"End with bracketed references like [1], [2] aligned to the snippets."
}

func userInstructionsQNA(locale model.Locale) string {
	if locale == model.LocaleHE {
		return "פורמט מענה: פסקה קצרה, צעדים מעשיים אם רלוונטי, ואז הפניות [i] תואמות למקורות."
	}
	return "Answer format: short paragraph, optional actionable steps, then references [i] matching sources."
}

// Fallback texts. Always non-empty and in the user's locale.

func parseFallbackText(locale model.Locale) string {
	if locale == model.LocaleHE {
		return "לא הצלחתי לפענח את התשובה. אנא נסה שוב."
	}
	return "I could not parse the reply. Please try again."
}

func llmErrorText(locale model.Locale) string {
	if locale == model.LocaleHE {
		return "מצטערים, יש כרגע תקלה זמנית בשירות. נסו שוב בעוד רגע."
	}
	return "Sorry, the service hit a temporary error. Please try again in a moment."
}

func kbErrorText(locale model.Locale) string {
	if locale == model.LocaleHE {
		return "מצטערים, לא ניתן לגשת כרגע למאגר הידע. נסו שוב מאוחר יותר."
	}
	return "Sorry, the knowledge base is unavailable right now. Please try again later."
}

func noMatchText(locale model.Locale) string {
	if locale == model.LocaleHE {
		return "לא נמצא מידע מתאים במאגר. נסו לנסח את השאלה אחרת."
	}
	return "No matching information was found. Try rephrasing your question."
}

func defaultAckText(locale model.Locale) string {
	if locale == model.LocaleHE {
		return "אוקיי."
	}
	return "OK."
}
