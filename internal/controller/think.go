package controller

import "strings"

var (
	thinkToHTML = strings.NewReplacer("<think>", `<div class="think">`, "</think>", "</div>")
	thinkStrip  = strings.NewReplacer("<think>", "", "</think>", "")
)

// cleanThink translates thinking delimiters into a renderable wrapper when
// reasoning is on and removes them otherwise.
func cleanThink(s string, reason bool) string {
	if reason {
		return thinkToHTML.Replace(s)
	}
	return thinkStrip.Replace(s)
}
