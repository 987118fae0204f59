package utils

import (
	"reflect"
	"testing"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		in   string
		opts CanonicalizeOptions
		want string
	}{
		{
			in:   "HTTP://Example.COM:80/foo/../bar/?b=2&a=1#frag",
			opts: CanonicalizeOptions{},
			want: "http://example.com/bar?a=1&b=2",
		},
		{
			in:   "https://example.com:443/index.html#section",
			opts: CanonicalizeOptions{},
			want: "https://example.com/index.html",
		},
		{
			in:   "example.com/page?utm_source=x&z=1",
			opts: CanonicalizeOptions{DefaultScheme: "https", DropQuery: true},
			want: "https://example.com/page",
		},
		{
			in:   "https://例え.テスト/a",
			opts: CanonicalizeOptions{},
			// punycode-encoded host
			want: "https://xn--r8jz45g.xn--zckzah/a",
		},
		{
			in:   "https://www.Example.com/Used/Ford/",
			opts: ListingKeyOptions,
			want: "https://example.com/used/ford",
		},
	}

	for _, tt := range tests {
		got, err := Canonicalize(tt.in, tt.opts)
		if err != nil {
			t.Fatalf("canonicalize(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("canonicalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCanonicalize_Errors(t *testing.T) {
	if _, err := Canonicalize("   ", CanonicalizeOptions{}); err == nil {
		t.Fatal("expected error for empty url")
	}
	if _, err := Canonicalize("/relative/only", CanonicalizeOptions{}); err == nil {
		t.Fatal("expected error for missing host")
	}
}

func TestListingKey(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"https://dealer.com/inventory/2020-ford-f150/", "dealer.com/inventory/2020-ford-f150"},
		{"http://WWW.Dealer.com/Inventory/2020-Ford-F150?utm=1#photos", "dealer.com/inventory/2020-ford-f150"},
		{"dealer.com/inventory/x", "dealer.com/inventory/x"},
		{"", ""},
		{"https://dealer.com/", "dealer.com"},
	}
	for _, tt := range tests {
		if got := ListingKey(tt.in); got != tt.want {
			t.Errorf("ListingKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestImageKey_StripsQuery(t *testing.T) {
	t.Parallel()
	a := ImageKey("https://cdn.example.com/img/1.jpg?w=640&h=480")
	b := ImageKey("https://CDN.example.com/img/1.jpg?w=1280")
	if a != b {
		t.Fatalf("expected equal keys, got %q and %q", a, b)
	}
	if c := ImageKey("https://cdn.example.com/img/2.jpg"); c == a {
		t.Fatalf("distinct images collapsed to %q", c)
	}
}

func TestUnionImages(t *testing.T) {
	t.Parallel()
	got := UnionImages(
		[]string{"https://a.example/1.jpg", "https://a.example/2.jpg?v=1"},
		[]string{"https://A.example/2.jpg?v=2", "https://b.example/3.jpg", ""},
	)
	want := []string{"https://a.example/1.jpg", "https://a.example/2.jpg?v=1", "https://b.example/3.jpg"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("UnionImages = %v, want %v", got, want)
	}
	if UnionImages(nil, nil) != nil {
		t.Error("expected nil for no images")
	}
}

func TestSameListing(t *testing.T) {
	t.Parallel()
	tests := []struct {
		a, b string
		want bool
	}{
		{"d.com/vdp/123", "d.com/vdp/123", true},
		{"d.com/vdp/123", "d.com/vdp/123/photos", true},
		{"d.com/vdp/123/photos", "d.com/vdp/123", true},
		{"d.com/vdp/123", "d.com/vdp/1234", false},
		{"", "d.com/vdp/123", false},
	}
	for _, tt := range tests {
		if got := SameListing(tt.a, tt.b); got != tt.want {
			t.Errorf("SameListing(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestToken(t *testing.T) {
	t.Parallel()
	if Token("F-150 ") != "f150" {
		t.Errorf("Token(F-150) = %q", Token("F-150 "))
	}
	if Token("Mercedes-Benz") != Token("mercedes benz") {
		t.Errorf("expected folded makes to match")
	}
	if !FoldEqual(" Honda", "HONDA ") {
		t.Errorf("FoldEqual should ignore case and whitespace")
	}
}
