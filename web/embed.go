package web

import (
	_ "embed"
)

// RootSeed is the Markdown source the root page is bootstrapped from when
// the first user is registered.
//
//go:embed root.md
var RootSeed string
