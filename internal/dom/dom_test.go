package dom

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func TestParse_AddsHead(t *testing.T) {
	doc, err := ParseString("<p>hello</p>")
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}
	if Head(doc) == nil {
		t.Error("Head() = nil, want implied <head>")
	}
}

func TestFindByID(t *testing.T) {
	doc, _ := ParseString(`<html><head></head><body><div><span id="target">x</span></div></body></html>`)

	n := FindByID(doc, "target")
	if n == nil {
		t.Fatal("FindByID() = nil")
	}
	if n.Data != "span" {
		t.Errorf("FindByID().Data = %q, want span", n.Data)
	}
	if FindByID(doc, "missing") != nil {
		t.Error("FindByID(missing) should be nil")
	}
	if FindByID(nil, "target") != nil {
		t.Error("FindByID(nil) should be nil")
	}
}

func TestDetach(t *testing.T) {
	doc, _ := ParseString(`<html><head><script id="s"></script></head><body></body></html>`)

	n := FindByID(doc, "s")
	Detach(n)
	if FindByID(doc, "s") != nil {
		t.Error("element still present after Detach()")
	}

	// second detach and nil are no-ops
	Detach(n)
	Detach(nil)
}

func TestSetAttr_PreservesOrder(t *testing.T) {
	n := NewElement(atom.A, []html.Attribute{{Key: "href", Val: "/"}, {Key: "class", Val: "x"}})

	SetAttr(n, "href", "/new")
	SetAttr(n, "title", "t")

	if len(n.Attr) != 3 {
		t.Fatalf("len(Attr) = %d, want 3", len(n.Attr))
	}
	if n.Attr[0].Key != "href" || n.Attr[0].Val != "/new" {
		t.Errorf("Attr[0] = %+v, want href=/new", n.Attr[0])
	}
	if v, ok := Attr(n, "title"); !ok || v != "t" {
		t.Errorf("Attr(title) = %q, %v", v, ok)
	}
}

func TestRenderString(t *testing.T) {
	n := NewElement(atom.Script, []html.Attribute{{Key: "src", Val: "https://x/script.js"}})
	out := RenderString(n)
	if !strings.Contains(out, `<script src="https://x/script.js"></script>`) {
		t.Errorf("RenderString() = %q", out)
	}
}
