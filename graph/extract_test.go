package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractMarkup(t *testing.T) {
	html := []byte(`<html>
		<link rel="stylesheet" href="css/app.css">
		<script src="/js/main.js"></script>
		<img src='logo.png' srcset="logo.png 1x, logo@2x.png 2x">
		<video poster="poster.jpg"></video>
		<a href="https://example.com/page">out</a>
		<div style="background: url('bg.png')"></div>
	</html>`)
	refs := ExtractMarkup(html)
	assert.Contains(t, refs, "css/app.css")
	assert.Contains(t, refs, "/js/main.js")
	assert.Contains(t, refs, "logo.png")
	assert.Contains(t, refs, "logo@2x.png")
	assert.Contains(t, refs, "poster.jpg")
	assert.Contains(t, refs, "bg.png")
	assert.Contains(t, refs, "https://example.com/page") // dropped later by Resolve
}

func TestExtractStylesheet(t *testing.T) {
	css := []byte(`@import "base.css";
	h1 { background: url( "../img/h.png" ); }
	h2 { background: url(img/h2.png); }`)
	refs := ExtractStylesheet(css)
	assert.Equal(t, []string{"../img/h.png", "img/h2.png", "base.css"}, refs)
}

func TestExtractScript(t *testing.T) {
	js := []byte(`import { a } from "./a.js";
	import "./side-effect.js";
	export { b } from './b.js';
	const c = require("./c.js");
	fetch('/api/data.json');
	new Worker("worker.js");
	importScripts("deps.js");
	const img = "assets/pic.png";`)
	refs := ExtractScript(js)
	assert.Contains(t, refs, "./a.js")
	assert.Contains(t, refs, "./side-effect.js")
	assert.Contains(t, refs, "./b.js")
	assert.Contains(t, refs, "./c.js")
	assert.Contains(t, refs, "/api/data.json")
	assert.Contains(t, refs, "worker.js")
	assert.Contains(t, refs, "deps.js")
	assert.Contains(t, refs, "assets/pic.png")
}

func TestExtractJSON(t *testing.T) {
	data := []byte(`{"icon": "img/icon.png", "name": "my app", "page": "./docs/readme.md", "num": 5}`)
	refs := ExtractJSON(data)
	assert.Contains(t, refs, "img/icon.png")
	assert.Contains(t, refs, "./docs/readme.md")
	assert.NotContains(t, refs, "my app")
}

func TestExtractSVG(t *testing.T) {
	svg := []byte(`<svg>
		<image xlink:href="photo.jpg"/>
		<use href="#local"/>
		<rect fill="url(#grad)"/>
		<image href="other.png"/>
	</svg>`)
	refs := ExtractSVG(svg)
	assert.Contains(t, refs, "photo.jpg")
	assert.Contains(t, refs, "other.png")
	assert.NotContains(t, refs, "#local")
	assert.NotContains(t, refs, "#grad")
}

func TestResolve(t *testing.T) {
	refs := []string{
		"./a.js",
		"../img/logo.png",
		"/css/app.css",
		"b.js?v=2",
		"c.js#frag",
		"https://cdn.example.com/lib.js",
		"//cdn.example.com/lib2.js",
		"data:image/png;base64,AAAA",
		"mailto:x@y.z",
		"#anchor",
		"./a.js", // duplicate
		"../../outside.js",
	}
	out := Resolve(refs, "js/app.js")
	assert.Equal(t, []string{"js/a.js", "img/logo.png", "css/app.css", "js/b.js", "js/c.js"}, out)
}

func TestResolveDropsSelf(t *testing.T) {
	out := Resolve([]string{"./app.js"}, "app.js")
	assert.Empty(t, out)
}
