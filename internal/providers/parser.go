package providers

import "strings"

// ProviderRef names one configured provider, e.g. "openai:work" is the openai provider using
// the key stored under the "work" alias.
type ProviderRef struct {
	Raw      string
	Name     string
	KeyAlias string
}

// ParseProviderList reads a fallback chain such as "groq|openai:work|mock". Entries may be
// separated by "|" or ","; names are case-insensitive and repeated entries are dropped. An
// empty list falls back to the mock provider.
func ParseProviderList(raw string) []ProviderRef {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == '|' || r == ',' })
	out := make([]ProviderRef, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		name, alias, _ := strings.Cut(strings.TrimSpace(f), ":")
		ref := ProviderRef{
			Name:     strings.ToLower(strings.TrimSpace(name)),
			KeyAlias: strings.TrimSpace(alias),
		}
		if ref.Name == "" {
			continue
		}
		ref.Raw = ref.Name
		if ref.KeyAlias != "" {
			ref.Raw += ":" + ref.KeyAlias
		}
		if seen[ref.Raw] {
			continue
		}
		seen[ref.Raw] = true
		out = append(out, ref)
	}
	if len(out) == 0 {
		out = append(out, ProviderRef{Raw: "mock", Name: "mock"})
	}
	return out
}
