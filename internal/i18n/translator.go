package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
)

//go:embed translations/*.json
var translationFS embed.FS

type Language string

const (
	EN Language = "en"
	HE Language = "he"
)

func (l Language) String() string {
	return string(l)
}

func ParseLanguage(lang string) (Language, error) {
	switch lang {
	case "en":
		return EN, nil
	case "he":
		return HE, nil
	default:
		return "", fmt.Errorf("unsupported language: %s", lang)
	}
}

type Translations map[string]string

type Translator struct {
	translations map[Language]Translations
	defaultLang  Language
}

func NewTranslator(defaultLang Language) Translator {
	return Translator{
		translations: make(map[Language]Translations),
		defaultLang:  defaultLang,
	}
}

func (i *Translator) LoadTranslations() error {
	entries, err := fs.ReadDir(translationFS, "translations")
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		langName := entry.Name()[:len(entry.Name())-5]
		lang, err := ParseLanguage(langName)
		if err != nil {
			return fmt.Errorf("failed to parse language %s: %w", langName, err)
		}

		data, err := translationFS.ReadFile("translations/" + entry.Name())
		if err != nil {
			return err
		}

		var translations Translations
		if err := json.Unmarshal(data, &translations); err != nil {
			return fmt.Errorf("failed to decode translations for %s: %w", langName, err)
		}
		i.translations[lang] = translations
	}

	return nil
}

func (i *Translator) T(lang Language, key string) string {
	if translations, ok := i.translations[lang]; ok {
		if translation, ok := translations[key]; ok {
			return translation
		}
	}

	// Fallback to default language
	if lang != i.defaultLang {
		if translations, ok := i.translations[i.defaultLang]; ok {
			if translation, ok := translations[key]; ok {
				return translation
			}
		}
	}

	// Return key if no translation found
	return fmt.Sprintf("[missing: %s]", key)
}

func (i *Translator) GetAvailableLanguages() []Language {
	var langs []Language
	for lang := range i.translations {
		langs = append(langs, lang)
	}
	return langs
}
