package discord

import _ "embed"

// CSS styles rendered threads and citation previews. It is registered once
// per build as a page-level stylesheet.
//
//go:embed discord.css
var CSS string
