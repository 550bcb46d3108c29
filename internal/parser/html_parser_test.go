package parser

import (
	"testing"
)

func TestHTMLParser(t *testing.T) {
	htmlContent := `
<!DOCTYPE html>
<html>
<head>
	<title>  Test Page Title
	</title>
	<title>Second Title</title>
	<META NAME="Description" content="  This is a
	test   description ">
	<meta name="robots" content="index,follow">
	<link rel="canonical" href="https://example.com/canonical-page">
</head>
<body>
	<h1>  Test
	   Page </h1>
	<h1>Other heading</h1>
	<p>Some content</p>
	<a href="/relative-link">Relative Link</a>
	<a href="https://example.com/absolute-link#section">Absolute Link</a>
	<a href="https://external.com/page" rel="nofollow">External Link</a>
	<a href="#anchor">Anchor Link</a>
	<a href="javascript:void(0)">JavaScript Link</a>
	<a href="mailto:team@example.com">Mail</a>
	<a href="sibling">Link with <span>nested</span> text</a>
</body>
</html>
`

	parser, err := NewHTMLParser("https://example.com/docs/test-page")
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}

	result, err := parser.Parse([]byte(htmlContent))
	if err != nil {
		t.Fatalf("Failed to parse HTML: %v", err)
	}

	if result.Title != "Test Page Title" {
		t.Errorf("Expected title 'Test Page Title', got '%s'", result.Title)
	}

	if result.H1 != "Test Page" {
		t.Errorf("Expected h1 'Test Page', got '%s'", result.H1)
	}

	if result.MetaDesc != "This is a test description" {
		t.Errorf("Expected description 'This is a test description', got '%s'", result.MetaDesc)
	}

	if result.MetaRobots != "index,follow" {
		t.Errorf("Expected robots 'index,follow', got '%s'", result.MetaRobots)
	}

	if result.CanonicalURL != "https://example.com/canonical-page" {
		t.Errorf("Expected canonical URL 'https://example.com/canonical-page', got '%s'", result.CanonicalURL)
	}

	expectedLinks := []struct {
		url        string
		anchorText string
		rel        string
	}{
		{"https://example.com/relative-link", "Relative Link", ""},
		{"https://example.com/absolute-link", "Absolute Link", ""},
		{"https://external.com/page", "External Link", "nofollow"},
		{"https://example.com/docs/sibling", "Link with nested text", ""},
	}

	if len(result.Links) != len(expectedLinks) {
		t.Fatalf("Expected %d links, got %d: %+v", len(expectedLinks), len(result.Links), result.Links)
	}

	for i, expected := range expectedLinks {
		link := result.Links[i]
		if link.URL != expected.url {
			t.Errorf("Link %d: expected URL '%s', got '%s'", i, expected.url, link.URL)
		}
		if link.AnchorText != expected.anchorText {
			t.Errorf("Link %d: expected anchor text '%s', got '%s'", i, expected.anchorText, link.AnchorText)
		}
		if link.RelAttribute != expected.rel {
			t.Errorf("Link %d: expected rel '%s', got '%s'", i, expected.rel, link.RelAttribute)
		}
	}
}

func TestHTMLParserBaseHref(t *testing.T) {
	htmlContent := `
<html>
<head><base href="/en/"></head>
<body><a href="about">About</a><a href="/contact">Contact</a></body>
</html>
`

	parser, err := NewHTMLParser("https://example.com/some/deep/page")
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}

	result, err := parser.Parse([]byte(htmlContent))
	if err != nil {
		t.Fatalf("Failed to parse HTML: %v", err)
	}

	want := []string{"https://example.com/en/about", "https://example.com/contact"}
	if len(result.Links) != len(want) {
		t.Fatalf("Expected %d links, got %+v", len(want), result.Links)
	}
	for i, w := range want {
		if result.Links[i].URL != w {
			t.Errorf("Link %d: expected %s, got %s", i, w, result.Links[i].URL)
		}
	}
}

func TestHTMLParserRelativeCanonical(t *testing.T) {
	htmlContent := `
<!DOCTYPE html>
<html>
<head>
	<link rel="canonical" href="/canonical-page">
</head>
</html>
`

	parser, err := NewHTMLParser("https://example.com/test-page")
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}

	result, err := parser.Parse([]byte(htmlContent))
	if err != nil {
		t.Fatalf("Failed to parse HTML: %v", err)
	}

	if result.CanonicalURL != "https://example.com/canonical-page" {
		t.Errorf("Expected canonical URL 'https://example.com/canonical-page', got '%s'", result.CanonicalURL)
	}
}

func TestHTMLParserEmptyContent(t *testing.T) {
	parser, err := NewHTMLParser("https://example.com/")
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}

	result, err := parser.Parse([]byte(""))
	if err != nil {
		t.Fatalf("Failed to parse empty HTML: %v", err)
	}

	if result.Title != "" || result.H1 != "" || result.MetaDesc != "" || len(result.Links) != 0 {
		t.Error("Expected empty results for empty HTML")
	}
}

func TestCollapseSpace(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"   ", ""},
		{"a  b", "a b"},
		{"\n\ta\n b\t", "a b"},
	}
	for _, tt := range tests {
		if got := CollapseSpace(tt.in); got != tt.want {
			t.Errorf("CollapseSpace(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
