// Package declare turns the units listed in sitepress.yaml into engine
// units, so a site can be built without writing Go.
//
// Page units render each matched document through an html/template layout.
// Markdown bodies are converted with goldmark first, and links to other
// Markdown files are rewritten to .html. The layout receives a Page value;
// dependent units see the artifacts of their dependencies under .Deps.
package declare
