package i18n

import (
	"net/http"

	"golang.org/x/text/language"
)

// Middleware picks a localizer per request from the Accept-Language header,
// falling back to lang when nothing matches.
func Middleware(lang string) func(http.Handler) http.Handler {
	matcher := language.NewMatcher(bundle.LanguageTags())
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			chosen := Negotiate(matcher, r.Header.Get("Accept-Language"), lang)
			w.Header().Set("Content-Language", chosen)
			ctx := WithLocalizer(r.Context(), NewLocalizer(chosen))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Negotiate returns the base language of the best supported match for an
// Accept-Language header, or fallback.
func Negotiate(matcher language.Matcher, accept, fallback string) string {
	if accept == "" {
		return fallback
	}
	tags, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(tags) == 0 {
		return fallback
	}
	tag, _, confidence := matcher.Match(tags...)
	if confidence == language.No {
		return fallback
	}
	base, _ := tag.Base()
	return base.String()
}
