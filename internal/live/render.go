package live

import (
	"bytes"
	"fmt"
	"html/template"

	"blurtbb/internal/services"
)

var voteTemplate = template.Must(template.New("votes").Parse(`<div class="vote-widget{{if .Voted}} voted{{end}}{{if .Root}} vote-widget-root{{end}}"{{if .Root}} id="post-votes"{{end}} data-vote-author="{{.Author}}" data-vote-permlink="{{.Permlink}}" data-voted="{{.Voted}}">
<form method="post" action="/vote" class="vote-form">
<input type="hidden" name="author" value="{{.Author}}">
<input type="hidden" name="permlink" value="{{.Permlink}}">
<input type="hidden" name="root" value="{{.Root}}">
<input type="hidden" name="weight" value="{{if .Voted}}0{{else}}10000{{end}}">
<button type="submit" class="vote-btn" aria-pressed="{{.Voted}}"{{if not .Viewer}} disabled{{end}} title="{{if .Voted}}Remove vote{{else}}Vote{{end}}">&#9650;</button>
</form>
<button type="button" class="vote-count" data-popover="voters">{{.Count}}</button>
<span class="payout{{if .Root}} payout-lg{{else}} payout-sm{{end}}">{{.PayoutLabel}}: {{.Payout}}</span>
<template class="voter-list"><ul>{{range .Voters}}<li>{{.Name}} <small>{{printf "%.0f" .Percent}}%</small></li>{{else}}<li>No votes yet</li>{{end}}</ul></template>
</div>`))

// RenderVoteFragment renders the vote widget of view.
func RenderVoteFragment(view services.VoteView) (template.HTML, error) {
	var buf bytes.Buffer
	if err := voteTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render vote fragment: %w", err)
	}
	return template.HTML(buf.String()), nil
}
