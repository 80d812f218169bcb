package rpc

import "testing"

func TestStaticProviderResolve(t *testing.T) {
	p := StaticProvider("alchemy", 1, "https://rpc.example/{chainId}/v2/{apiKey}")

	url, err := p.Resolve("137", Credentials{"alchemy": "secret"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if url != "https://rpc.example/137/v2/secret" {
		t.Errorf("unexpected url %q", url)
	}
}

func TestStaticProviderMissingKey(t *testing.T) {
	p := StaticProvider("alchemy", 1, "https://rpc.example/v2/{apiKey}")
	if _, err := p.Resolve("1", nil); err == nil {
		t.Error("expected error when api key is missing")
	}
}

func TestStaticProviderNoPlaceholders(t *testing.T) {
	p := StaticProvider("public", 3, "https://cloudflare-eth.com")
	url, err := p.Resolve("1", nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if url != "https://cloudflare-eth.com" {
		t.Errorf("unexpected url %q", url)
	}
}

func TestSortProvidersStable(t *testing.T) {
	providers := []Provider{
		{Name: "c", Priority: 2},
		{Name: "a", Priority: 1},
		{Name: "b", Priority: 2},
	}
	sorted := sortProviders(providers)

	want := []string{"a", "c", "b"}
	for i, name := range want {
		if sorted[i].Name != name {
			t.Errorf("position %d: got %s, want %s", i, sorted[i].Name, name)
		}
	}
	if providers[0].Name != "c" {
		t.Error("input slice must not be reordered")
	}
}
