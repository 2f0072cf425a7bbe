package translator

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

//go:embed locales/*.toml
var embedded embed.FS

var Translator *i18n.Bundle

type Config struct {
	// TranslationFolder optionally overrides or extends the embedded messages.
	TranslationFolder  string
	SupportedLanguages []string
}

const (
	LanguageFr = "fr"
	LanguageEn = "en"

	// LangKey is the gin context key holding the request's negotiated language.
	LangKey = "lang"
)

func init() {
	Translator = newBundle()
	loadFS(Translator, embedded, "locales")
}

var matcher = language.NewMatcher([]language.Tag{language.English, language.French})

// Match picks the supported language that best fits an Accept-Language
// header, honouring q-values. Unparsable or unmatched headers give English.
func Match(acceptLanguage string) string {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return LanguageEn
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No || idx == 0 {
		return LanguageEn
	}
	return LanguageFr
}

func newBundle() *i18n.Bundle {
	b := i18n.NewBundle(language.English)
	b.RegisterUnmarshalFunc("toml", toml.Unmarshal)
	return b
}

// InitTranslator rebuilds the bundle from the embedded messages plus any files
// found in cfg.TranslationFolder.
func InitTranslator(cfg Config) {
	b := newBundle()
	loadFS(b, embedded, "locales")

	if cfg.TranslationFolder != "" {
		lstFiles, err := os.ReadDir(cfg.TranslationFolder)
		if err != nil {
			zap.L().Error("failed to list translation folder", zap.String("folder", cfg.TranslationFolder), zap.Error(err))
		} else {
			for _, f := range lstFiles {
				if f.IsDir() || !supported(f.Name(), cfg.SupportedLanguages) {
					continue
				}
				path := filepath.Join(cfg.TranslationFolder, f.Name())
				if _, err := b.LoadMessageFile(path); err != nil {
					zap.L().Warn("failed to load translation file", zap.String("file", f.Name()), zap.Error(err))
				}
			}
		}
	}

	Translator = b
}

func loadFS(b *i18n.Bundle, fsys fs.FS, dir string) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		zap.L().Error("failed to list embedded translations", zap.Error(err))
		return
	}
	for _, e := range entries {
		if _, err := b.LoadMessageFileFS(fsys, fmt.Sprintf("%s/%s", dir, e.Name())); err != nil {
			zap.L().Warn("failed to load embedded translation", zap.String("file", e.Name()), zap.Error(err))
		}
	}
}

func supported(file string, langs []string) bool {
	if len(langs) == 0 {
		return true
	}
	base := strings.TrimSuffix(file, filepath.Ext(file))
	for _, l := range langs {
		if strings.EqualFold(base, l) {
			return true
		}
	}
	return false
}

// Localize resolves msgKey for the given Accept-Language value. It returns the
// key itself when no translation exists.
func Localize(msgKey, lang string, data map[string]any) string {
	l := i18n.NewLocalizer(Translator, lang, LanguageEn)
	msg, err := l.Localize(&i18n.LocalizeConfig{MessageID: msgKey, TemplateData: data})
	if err != nil {
		zap.L().Debug("translation not found", zap.String("lang", lang), zap.String("message_id", msgKey), zap.Error(err))
		return msgKey
	}
	return msg
}
