package rpc

import (
	"fmt"
	"sort"
	"strings"
)

// Credentials holds per-provider secrets (API keys) used when resolving
// endpoint URLs. Keys are provider names.
type Credentials map[string]string

// Provider describes one remote RPC/bundler endpoint. Providers are
// configured once at startup and iterated in ascending priority.
type Provider struct {
	Name     string
	Priority int
	Resolve  func(chainID string, creds Credentials) (string, error)
}

// StaticProvider builds a provider whose URL embeds the chain ID and,
// optionally, an API key. The url template may contain "{chainId}" and
// "{apiKey}" placeholders.
func StaticProvider(name string, priority int, urlTemplate string) Provider {
	return Provider{
		Name:     name,
		Priority: priority,
		Resolve: func(chainID string, creds Credentials) (string, error) {
			url := strings.ReplaceAll(urlTemplate, "{chainId}", chainID)
			if strings.Contains(url, "{apiKey}") {
				key := creds[name]
				if key == "" {
					return "", fmt.Errorf("provider %s requires an api key", name)
				}
				url = strings.ReplaceAll(url, "{apiKey}", key)
			}
			return url, nil
		},
	}
}

// sortProviders returns a copy ordered by ascending priority, stable for
// equal priorities.
func sortProviders(providers []Provider) []Provider {
	sorted := make([]Provider, len(providers))
	copy(sorted, providers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})
	return sorted
}
