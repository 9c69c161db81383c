package catalog

import (
	"golang.org/x/text/language"

	"github.com/DoyleJ11/townsquare-live/internal/voting"
)

// Texts are the user-facing strings the session layer needs.
type Texts struct {
	Exile     string
	Execution string
	Host      string
}

// Voting returns the vote type labels.
func (t Texts) Voting() voting.Texts {
	return voting.Texts{Exile: t.Exile, Execution: t.Execution}
}

const DefaultLocale = "en"

var supported = []language.Tag{language.English, language.French, language.Spanish}

var matcher = language.NewMatcher(supported)

var texts = map[string]Texts{
	"en": {
		Exile:     "Exile",
		Execution: "Execution",
		Host:      "Host",
	},
	"fr": {
		Exile:     "Exil",
		Execution: "Exécution",
		Host:      "Conteur",
	},
	"es": {
		Exile:     "Exilio",
		Execution: "Ejecución",
		Host:      "Narrador",
	},
}

// MatchLocale picks the best supported locale for the preferred tags, most
// preferred first. Unparseable tags are skipped.
func MatchLocale(preferred ...string) string {
	var tags []language.Tag
	for _, p := range preferred {
		if t, err := language.Parse(p); err == nil {
			tags = append(tags, t)
		}
	}
	if len(tags) == 0 {
		return DefaultLocale
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return DefaultLocale
	}
	base, _ := supported[idx].Base()
	return base.String()
}

// TextsFor returns the strings for locale, falling back to English.
func TextsFor(locale string) Texts {
	if t, ok := texts[MatchLocale(locale)]; ok {
		return t
	}
	return texts[DefaultLocale]
}
