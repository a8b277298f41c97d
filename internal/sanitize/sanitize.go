// Package sanitize validates HTML/CSS template bundles against a safe
// subset before they ever reach the external renderer subprocess, and
// derives per-layer CSS variables and text bindings from a schema and a
// value set.
//
// The scanning style (case-insensitive substring checks, regexp extraction)
// follows the same plain string-processing idiom the rest of this module
// uses for parsing filenames and config values — no HTML parser dependency
// is pulled in for what is, by design, a denylist over a handful of literal
// patterns.
package sanitize

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jota2rz/graphics-core/internal/models"
)

// ErrTemplateRejected is wrapped with a reason and returned by
// ValidateTemplate whenever a disallowed construct is found.
var ErrTemplateRejected = errors.New("template rejected")

// RejectedError carries the specific rule that failed, for logging and for
// callers that want to report exactly why a template bundle was refused.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("template rejected: %s", e.Reason)
}

func (e *RejectedError) Unwrap() error { return ErrTemplateRejected }

func rejected(format string, args ...any) error {
	return &RejectedError{Reason: fmt.Sprintf(format, args...)}
}

var (
	assetRefPattern = regexp.MustCompile(`asset://([A-Za-z0-9_-]+)`)

	// htmlBannedSubstrings are case-insensitive literal patterns that are
	// never allowed inside the HTML document.
	htmlBannedSubstrings = []string{"<script", "<iframe", "<object", "<embed", "<link"}

	// onEventAttr matches an inline event handler attribute like
	// onclick=, onload=, onmouseover=.
	onEventAttr = regexp.MustCompile(`(?i)\bon[a-z]+\s*=`)

	// bannedURLSchemes are absolute URL schemes rejected anywhere in either
	// HTML or CSS. "asset://" is the only absolute scheme this engine
	// accepts.
	bannedURLSchemes = []string{"javascript:", "http://", "https://", "data:", "file:", "ftp:"}

	styleCloseTag = regexp.MustCompile(`(?i)</style>`)
	atImport      = regexp.MustCompile(`(?i)@import\b`)
)

// SanitizeCSS performs a conservative normalization of CSS before storage:
// it collapses runs of spaces, tabs and carriage returns and strips
// `</style>` and `@import` defensively, so that storage never depends on
// validation having already run. Banned URL schemes are left in place for
// ValidateTemplate to reject. Sanitization always runs before ValidateTemplate so a
// removable pattern can't be used to smuggle an injection past the
// denylist.
func SanitizeCSS(css string) string {
	css = styleCloseTag.ReplaceAllString(css, "")
	css = atImport.ReplaceAllString(css, "")
	css = collapseWhitespace(css)
	return strings.TrimSpace(css)
}

func collapseWhitespace(s string) string {
	var b strings.Builder
	lastWasSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\r' {
			if lastWasSpace {
				continue
			}
			lastWasSpace = true
			b.WriteRune(' ')
			continue
		}
		lastWasSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

// ValidateTemplate checks the sanitized HTML and CSS against the safe
// subset and, on success, extracts the set of asset://<id> references found
// in either document. Callers must pass CSS that has already been through
// SanitizeCSS.
func ValidateTemplate(html, css string) (map[string]struct{}, error) {
	lowerHTML := strings.ToLower(html)

	for _, bad := range htmlBannedSubstrings {
		if strings.Contains(lowerHTML, bad) {
			return nil, rejected("disallowed tag %q", bad)
		}
	}
	if onEventAttr.MatchString(html) {
		return nil, rejected("inline event handler attribute")
	}
	if err := checkURLSchemes(html, "html"); err != nil {
		return nil, err
	}
	if err := checkURLSchemes(css, "css"); err != nil {
		return nil, err
	}
	if styleCloseTag.MatchString(css) {
		return nil, rejected("</style> inside css")
	}
	if atImport.MatchString(css) {
		return nil, rejected("@import in css")
	}

	assetIDs := make(map[string]struct{})
	for _, src := range []string{html, css} {
		for _, m := range assetRefPattern.FindAllStringSubmatch(src, -1) {
			assetIDs[m[1]] = struct{}{}
		}
	}
	return assetIDs, nil
}

func checkURLSchemes(doc, where string) error {
	lower := strings.ToLower(doc)
	for _, scheme := range bannedURLSchemes {
		if strings.Contains(lower, scheme) {
			return rejected("disallowed url scheme %q in %s", scheme, where)
		}
	}
	return nil
}

// AssetIDsSorted returns the asset ID set as a deterministically sorted
// slice, useful for logging and tests.
func AssetIDsSorted(ids map[string]struct{}) []string {
	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// animationClasses is the closed set of recognized animation values; any
// other value falls back to "anim-ease-out".
var animationClasses = map[string]bool{
	"ease": true, "ease-in": true, "ease-out": true, "ease-in-out": true,
	"linear": true, "slide-up": true, "slide-down": true,
	"slide-left": true, "slide-right": true,
}

// DeriveBindings computes CSS variables, text content, and the animation
// class for a layer from its schema and current values, following
// values[key] ?? defaults[key] resolution with undefined/null keys
// contributing nothing.
func DeriveBindings(schema map[string]models.SchemaEntry, defaults, values map[string]any) models.TemplateBindings {
	out := models.TemplateBindings{
		CSSVariables: make(map[string]string),
		TextContent:  make(map[string]string),
		TextTypes:    make(map[string]string),
	}

	for key, entry := range schema {
		v, ok := resolveValue(key, values, defaults)
		if !ok {
			continue
		}
		switch {
		case entry.Type == "string" && entry.ContentType != "":
			out.TextContent[key] = fmt.Sprintf("%v", v)
			out.TextTypes[key] = entry.ContentType
		case entry.Type == "number":
			out.CSSVariables["--"+key] = fmt.Sprintf("%v%s", v, entry.Unit)
		default:
			out.CSSVariables["--"+key] = fmt.Sprintf("%v", v)
		}
	}

	if anim, ok := resolveValue("animation", values, defaults); ok {
		if s, ok := anim.(string); ok && animationClasses[s] {
			out.AnimationClass = "anim-" + s
			return out
		}
	}
	out.AnimationClass = "anim-ease-out"
	return out
}

// resolveValue implements values[key] ?? defaults[key]; nil values at
// either level are treated as absent.
func resolveValue(key string, values, defaults map[string]any) (any, bool) {
	if v, ok := values[key]; ok && v != nil {
		return v, true
	}
	if v, ok := defaults[key]; ok && v != nil {
		return v, true
	}
	return nil, false
}
