package util

import (
	"testing"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "Trailing slash",
			input: "https://www.sparhamster.at/dyson-v15-angebot/",
			want:  "https://sparhamster.at/dyson-v15-angebot",
		},
		{
			name:  "Force https",
			input: "http://preisjaeger.at/deals/sony-334455",
			want:  "https://preisjaeger.at/deals/sony-334455",
		},
		{
			name:  "Remove UTM params",
			input: "https://www.preisjaeger.at/deals/x-1?utm_source=foo&utm_medium=bar",
			want:  "https://preisjaeger.at/deals/x-1",
		},
		{
			name:  "Keep other params",
			input: "https://www.sparhamster.at/?p=4711&utm_campaign=x",
			want:  "https://sparhamster.at/?p=4711",
		},
		{
			name:  "Foreign domain untouched",
			input: "https://www.amazon.de/dp/B0C1234567/?utm_source=x",
			want:  "https://www.amazon.de/dp/B0C1234567/?utm_source=x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("NormalizeURL() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("NormalizeURL() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetDomain(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "Standard domain",
			input: "https://amazon.de/dp/12345",
			want:  "amazon.de",
		},
		{
			name:  "Subdomain",
			input: "https://forward.sparhamster.at/out/1",
			want:  "sparhamster.at",
		},
		{
			name:  "Two-part TLD",
			input: "https://example.co.uk/product",
			want:  "example.co.uk",
		},
		{
			name:  "Subdomain with two-part TLD",
			input: "https://www.amazon.co.uk/dp/1",
			want:  "amazon.co.uk",
		},
		{
			name:  "Bare host",
			input: "www.preisjaeger.at",
			want:  "preisjaeger.at",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetDomain(tt.input)
			if got != tt.want {
				t.Errorf("GetDomain() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolveURL(t *testing.T) {
	if got := ResolveURL("https://www.preisjaeger.at/neu", "/deals/x-1"); got != "https://www.preisjaeger.at/deals/x-1" {
		t.Errorf("ResolveURL() = %v", got)
	}
	if got := ResolveURL("https://www.preisjaeger.at/", "https://cdn.example.com/a.jpg"); got != "https://cdn.example.com/a.jpg" {
		t.Errorf("ResolveURL() = %v", got)
	}
	if got := ResolveURL("https://www.preisjaeger.at/", "  "); got != "" {
		t.Errorf("ResolveURL() = %v, want empty", got)
	}
}
