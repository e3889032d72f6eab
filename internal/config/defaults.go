// File: internal/config/defaults.go
package config

import (
	"time"

	"github.com/spf13/viper"
)

// DefaultSynonyms is the compiled-in i18n synonym table. Each set lists
// terms treated as interchangeable during label matching.
func DefaultSynonyms() map[string][]string {
	return map[string][]string{
		"email":    {"e-mail", "mail", "email address", "e-mail-adresse"},
		"password": {"pass", "passwort", "kennwort", "pwd"},
		"username": {"user", "login", "benutzername", "user name"},
		"submit":   {"send", "save", "ok", "confirm", "senden", "speichern", "absenden"},
		"cancel":   {"abort", "close", "dismiss", "abbrechen", "schliessen"},
		"search":   {"find", "query", "suche", "suchen"},
		"login":    {"log in", "sign in", "signin", "anmelden", "einloggen"},
		"register": {"sign up", "signup", "create account", "registrieren"},
		"next":     {"continue", "proceed", "weiter", "fortfahren"},
		"back":     {"previous", "return", "zurueck"},
		"delete":   {"remove", "loeschen", "entfernen"},
		"edit":     {"change", "modify", "bearbeiten", "aendern"},
		"name":     {"full name", "vorname", "nachname"},
		"phone":    {"telephone", "mobile", "telefon", "tel"},
		"address":  {"street", "adresse", "anschrift"},
		"checkout": {"pay", "purchase", "order", "kasse", "bezahlen"},
	}
}

// DefaultButtonTexts lists labels that mark a button as submit-like for the
// primary-button heuristic.
func DefaultButtonTexts() []string {
	return []string{
		"submit", "save", "ok", "confirm", "continue", "next", "send",
		"login", "sign in", "sign up", "register", "apply", "create",
		"senden", "speichern", "weiter", "anmelden", "absenden",
	}
}

// SetDefaults initializes default values for every configuration key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "locus")
	v.SetDefault("logger.log_file", "locus.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Scoring --
	v.SetDefault("scoring.thresholds.direct", 0.78)
	v.SetDefault("scoring.thresholds.try_multiple", 0.60)
	v.SetDefault("scoring.thresholds.llm_fallback", 0.0)
	v.SetDefault("scoring.weights.role_match", 0.20)
	v.SetDefault("scoring.weights.label_similarity", 0.30)
	v.SetDefault("scoring.weights.i18n_normalization", 0.05)
	v.SetDefault("scoring.weights.stable_attributes", 0.20)
	v.SetDefault("scoring.weights.context_boost", 0.15)
	v.SetDefault("scoring.weights.negative_signals", 1.0)
	v.SetDefault("scoring.synonyms", DefaultSynonyms())

	// -- Resolver --
	v.SetDefault("resolver.max_extra_attempts", 2)
	v.SetDefault("resolver.retry_delay", 500*time.Millisecond)
	v.SetDefault("resolver.escalation_candidates", 8)
	v.SetDefault("resolver.validation_timeout", 5*time.Second)

	// -- Semantic retrieval --
	v.SetDefault("semantic.enabled", false)
	v.SetDefault("semantic.model", "gemini-embedding-001")
	v.SetDefault("semantic.batch_size", 20)
	v.SetDefault("semantic.batch_concurrency", 3)
	v.SetDefault("semantic.requests_per_sec", 5.0)
	v.SetDefault("semantic.cached_fingerprints", 3)
	v.SetDefault("semantic.max_results", 10)

	// -- Gateway --
	v.SetDefault("gateway.provider", "gemini")
	v.SetDefault("gateway.model", "gemini-2.5-flash")
	v.SetDefault("gateway.api_timeout", 60*time.Second)
	v.SetDefault("gateway.temperature", 0.1)
	v.SetDefault("gateway.max_tokens", 2048)

	// -- Store --
	v.SetDefault("store.path", "~/.locus/selectors.json")
	v.SetDefault("store.max_learned", 500)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.navigation_timeout", 90*time.Second)
	v.SetDefault("browser.evaluate_timeout", 10*time.Second)
	v.SetDefault("browser.ignore_tls_errors", false)

	// -- DOM query patterns --
	v.SetDefault("patterns.button_texts", DefaultButtonTexts())
	v.SetDefault("patterns.interactive_button_query",
		`//a[@href] | //button | //summary | //input[@type='submit' or @type='button' or @type='checkbox' or @type='radio'] | `+
			`//*[@role='button' or @role='link' or @role='tab' or @role='menuitem' or @role='checkbox' or @role='radio' or @role='combobox' or @aria-haspopup]`)
	v.SetDefault("patterns.interactive_input_query",
		`//input[not(@type='submit') and not(@type='button') and not(@type='reset') and not(@type='image')] | //textarea | //select | `+
			`//*[normalize-space(@contenteditable)='true' or normalize-space(@contenteditable)=''] | //label | //legend`)
	v.SetDefault("patterns.navigation_containers", []string{"nav", "aside", "header"})
	v.SetDefault("patterns.modal_selectors", []string{
		"[role='dialog']", "[role='alertdialog']", "[aria-modal='true']", "dialog[open]", ".modal.show", ".modal.open",
	})
	v.SetDefault("patterns.landmark_query",
		`//main | //nav | //aside | //header | //footer | //form | //section | //*[@role='main' or @role='navigation' or @role='search' or @role='form' or @role='region']`)
}
